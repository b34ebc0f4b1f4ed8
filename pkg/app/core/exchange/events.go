package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	KindDeposit  EventKind = "Deposit"
	KindWithdraw EventKind = "Withdraw"
	KindOrder    EventKind = "Order"
	KindCancel   EventKind = "Cancel"
	KindTrade    EventKind = "Trade"
)

// Event is the payload of a committed transition.
type Event interface {
	Kind() EventKind
	// Users lists the accounts the event concerns, for per-account fan-out.
	Users() []common.Address
}

type DepositEvent struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

type WithdrawEvent struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

type OrderEvent struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// CancelEvent carries the original order timestamp, not the cancellation time.
type CancelEvent struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// TradeEvent: User is the maker, UserFill the taker; Timestamp is the fill time.
type TradeEvent struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	UserFill   common.Address `json:"userFill"`
	Fee        *big.Int       `json:"fee"`
	Timestamp  int64          `json:"timestamp"`
}

func (*DepositEvent) Kind() EventKind  { return KindDeposit }
func (*WithdrawEvent) Kind() EventKind { return KindWithdraw }
func (*OrderEvent) Kind() EventKind    { return KindOrder }
func (*CancelEvent) Kind() EventKind   { return KindCancel }
func (*TradeEvent) Kind() EventKind    { return KindTrade }

func (e *DepositEvent) Users() []common.Address  { return []common.Address{e.User} }
func (e *WithdrawEvent) Users() []common.Address { return []common.Address{e.User} }
func (e *OrderEvent) Users() []common.Address    { return []common.Address{e.User} }
func (e *CancelEvent) Users() []common.Address   { return []common.Address{e.User} }
func (e *TradeEvent) Users() []common.Address    { return []common.Address{e.User, e.UserFill} }

func orderEvent(o *Order) *OrderEvent {
	return &OrderEvent{
		ID: o.ID, User: o.User,
		TokenGet: o.TokenGet, AmountGet: new(big.Int).Set(o.AmountGet),
		TokenGive: o.TokenGive, AmountGive: new(big.Int).Set(o.AmountGive),
		Timestamp: o.Timestamp,
	}
}

func cancelEvent(o *Order) *CancelEvent {
	return (*CancelEvent)(orderEvent(o))
}

// Record is an event as stored in the append-only log.
type Record struct {
	Seq   uint64    `json:"seq"`
	Time  time.Time `json:"time"`
	Event Event     `json:"-"`
}

type recordJSON struct {
	Seq  uint64          `json:"seq"`
	Time time.Time       `json:"time"`
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(r.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{Seq: r.Seq, Time: r.Time, Kind: r.Event.Kind(), Data: data})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var ev Event
	switch raw.Kind {
	case KindDeposit:
		ev = new(DepositEvent)
	case KindWithdraw:
		ev = new(WithdrawEvent)
	case KindOrder:
		ev = new(OrderEvent)
	case KindCancel:
		ev = new(CancelEvent)
	case KindTrade:
		ev = new(TradeEvent)
	default:
		return fmt.Errorf("unknown event kind %q", raw.Kind)
	}
	if err := json.Unmarshal(raw.Data, ev); err != nil {
		return fmt.Errorf("decode %s event: %w", raw.Kind, err)
	}
	r.Seq, r.Time, r.Event = raw.Seq, raw.Time, ev
	return nil
}
