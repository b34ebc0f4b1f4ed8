// Package exchange is a custodial exchange engine.
//
// Users deposit ether or tokens into the exchange, which credits an internal ledger.
// Orders are fixed-ratio offers recorded by id; filling one swaps both legs in full
// between maker and taker and charges the taker a fee in the maker's wanted asset.
// Every operation is all-or-nothing: on error no balance, order, counter or event changes.
package exchange

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/pkg/app/core/ledger"
	"github.com/uhyunpark/portex/pkg/app/core/token"
	"github.com/uhyunpark/portex/pkg/util"
)

// Ether is the asset id of the native asset.
var Ether = ledger.Ether

type Config struct {
	Address    common.Address // the exchange's own account; custody is held here
	FeeAccount common.Address
	FeePercent uint64
}

type Option func(*Engine)

func WithStore(s Store) Option               { return func(e *Engine) { e.store = s } }
func WithEtherVault(v EtherVault) Option     { return func(e *Engine) { e.vault = v } }
func WithClock(c util.Clock) Option          { return func(e *Engine) { e.clock = c } }
func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.log = l } }

type Engine struct {
	mu sync.Mutex

	cfg    Config
	tokens token.Resolver
	vault  EtherVault
	store  Store
	clock  util.Clock
	log    *zap.SugaredLogger

	ledger        *ledger.Ledger
	orders        map[uint64]*Order
	orderCount    uint64
	lastTimestamp int64
	events        *EventLog
}

// NewEngine builds an engine and restores its state from the store, if any.
func NewEngine(cfg Config, tokens token.Resolver, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		tokens: tokens,
		clock:  util.RealClock{},
		log:    zap.NewNop().Sugar(),
		ledger: ledger.New(),
		orders: make(map[uint64]*Order),
		events: NewEventLog(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.vault == nil {
		e.vault = newAttachedVault(cfg.Address)
	}
	if e.store != nil {
		snap, err := e.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load exchange state: %w", err)
		}
		if snap != nil {
			e.restore(snap)
		}
	}
	e.log.Infow("exchange_ready",
		"address", cfg.Address.Hex(),
		"fee_account", cfg.FeeAccount.Hex(),
		"fee_percent", cfg.FeePercent,
		"orders", e.orderCount,
		"events", e.events.Len())
	return e, nil
}

func (e *Engine) restore(s *Snapshot) {
	e.ledger.Load(s.Balances)
	for _, o := range s.Orders {
		e.orders[o.ID] = o.clone()
	}
	e.orderCount = s.OrderCount
	e.lastTimestamp = s.LastTimestamp
	e.events.load(s.Events)
}

func (e *Engine) Address() common.Address    { return e.cfg.Address }
func (e *Engine) FeeAccount() common.Address { return e.cfg.FeeAccount }
func (e *Engine) FeePercent() uint64         { return e.cfg.FeePercent }
func (e *Engine) Events() *EventLog          { return e.events }

// Subscribe registers an observer of committed events.
func (e *Engine) Subscribe(o Observer) func() { return e.events.Subscribe(o) }

// BalanceOf returns the custodial balance of user in asset.
func (e *Engine) BalanceOf(asset, user common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(asset, user)
}

// Balances returns every non-empty row held for user.
func (e *Engine) Balances(user common.Address) []ledger.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.UserBalances(user)
}

// Ledger returns every balance row sorted by (asset, user).
func (e *Engine) Ledger() []ledger.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Entries()
}

// EtherHeld is the ether actually held by the exchange account.
func (e *Engine) EtherHeld() *big.Int {
	return e.vault.BalanceOf(e.cfg.Address)
}

func (e *Engine) OrderCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderCount
}

func (e *Engine) Order(id uint64) (*Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return nil, false
	}
	return o.clone(), true
}

func (e *Engine) OrderFilled(id uint64) bool {
	o, ok := e.Order(id)
	return ok && o.Filled
}

func (e *Engine) OrderCancelled(id uint64) bool {
	o, ok := e.Order(id)
	return ok && o.Cancelled
}

// Orders returns matching orders sorted by id.
func (e *Engine) Orders(f OrderFilter) []*Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Order, 0)
	for _, o := range e.orders {
		if f.match(o) {
			out = append(out, o.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fee returns what a taker pays on top of amountGet: amountGet*feePercent/100, truncated.
func (e *Engine) Fee(amountGet *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountGet, new(big.Int).SetUint64(e.cfg.FeePercent))
	return fee.Quo(fee, big.NewInt(100))
}

// now returns unix seconds, never earlier than the last timestamp the engine issued.
func (e *Engine) now() int64 {
	ts := e.clock.Now().Unix()
	if ts < e.lastTimestamp {
		ts = e.lastTimestamp
	}
	return ts
}
