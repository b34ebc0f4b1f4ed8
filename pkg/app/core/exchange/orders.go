package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MakeOrder records an offer to give amountGive of tokenGive for amountGet of tokenGet.
// Balances are not checked until the order is filled.
func (e *Engine) MakeOrder(ctx context.Context, user, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) (*OrderEvent, error) {
	if err := validAmount(amountGet); err != nil {
		return nil, err
	}
	if err := validAmount(amountGive); err != nil {
		return nil, err
	}
	var ev *OrderEvent
	_, err := e.apply(ctx, "make_order", func(t *txn) error {
		o := &Order{
			User:       user,
			TokenGet:   tokenGet,
			AmountGet:  new(big.Int).Set(amountGet),
			TokenGive:  tokenGive,
			AmountGive: new(big.Int).Set(amountGive),
			Timestamp:  t.stamp(),
		}
		t.newOrder(o)
		ev = orderEvent(o)
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("order_made", "id", ev.ID, "user", user.Hex())
	return ev, nil
}

// CancelOrder marks the caller's own open order cancelled.
func (e *Engine) CancelOrder(ctx context.Context, user common.Address, id uint64) (*CancelEvent, error) {
	var ev *CancelEvent
	_, err := e.apply(ctx, "cancel_order", func(t *txn) error {
		o, ok := e.orders[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		if o.User != user {
			return fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, id, o.User.Hex())
		}
		if o.Filled {
			return fmt.Errorf("%w: %d", ErrAlreadyFilled, id)
		}
		if o.Cancelled {
			return fmt.Errorf("%w: %d", ErrAlreadyCancelled, id)
		}
		t.updateOrder(o, func(o *Order) { o.Cancelled = true })
		ev = cancelEvent(o)
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("order_cancelled", "id", id, "user", user.Hex())
	return ev, nil
}

// FillOrder executes order id in full against the caller.
//
// The taker pays amountGet plus the fee in tokenGet; the maker receives amountGet,
// the fee account receives the fee, and amountGive moves from maker to taker.
func (e *Engine) FillOrder(ctx context.Context, taker common.Address, id uint64) (*TradeEvent, error) {
	var ev *TradeEvent
	_, err := e.apply(ctx, "fill_order", func(t *txn) error {
		o, ok := e.orders[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		if o.Filled {
			return fmt.Errorf("%w: %d", ErrAlreadyFilled, id)
		}
		if o.Cancelled {
			return fmt.Errorf("%w: %d", ErrAlreadyCancelled, id)
		}

		fee := e.Fee(o.AmountGet)
		cost := new(big.Int).Add(o.AmountGet, fee)
		if _, err := t.debit(o.TokenGet, taker, cost); err != nil {
			return fmt.Errorf("taker %s: %w", taker.Hex(), err)
		}
		if _, err := t.credit(o.TokenGet, o.User, o.AmountGet); err != nil {
			return err
		}
		if _, err := t.credit(o.TokenGet, e.cfg.FeeAccount, fee); err != nil {
			return err
		}
		if _, err := t.debit(o.TokenGive, o.User, o.AmountGive); err != nil {
			return fmt.Errorf("maker %s: %w", o.User.Hex(), err)
		}
		if _, err := t.credit(o.TokenGive, taker, o.AmountGive); err != nil {
			return err
		}

		ts := t.stamp()
		t.updateOrder(o, func(o *Order) { o.Filled = true })
		ev = &TradeEvent{
			ID:         o.ID,
			User:       o.User,
			TokenGet:   o.TokenGet,
			AmountGet:  new(big.Int).Set(o.AmountGet),
			TokenGive:  o.TokenGive,
			AmountGive: new(big.Int).Set(o.AmountGive),
			UserFill:   taker,
			Fee:        fee,
			Timestamp:  ts,
		}
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("order_filled", "id", id, "maker", ev.User.Hex(), "taker", taker.Hex(), "fee", ev.Fee.String())
	return ev, nil
}
