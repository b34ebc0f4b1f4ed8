package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/ledger"
)

// txn accumulates one operation's effects so they can be committed or undone as a unit.
//
// Pulls (assets entering custody) run inline and register a refund.
// Pushes (assets leaving custody) are deferred until the new state is persisted;
// a failed push rolls the whole transition back.
type txn struct {
	e       *Engine
	j       *ledger.Journal
	undo    []func()
	created map[uint64]bool
	touched map[uint64]struct{}
	refunds []func(context.Context) error
	pushes  []func(context.Context) error
	events  []Event
}

func (e *Engine) begin() *txn {
	return &txn{
		e:       e,
		j:       e.ledger.Begin(),
		created: make(map[uint64]bool),
		touched: make(map[uint64]struct{}),
	}
}

func (t *txn) credit(asset, user common.Address, amount *big.Int) (*big.Int, error) {
	return t.j.Credit(asset, user, amount)
}

func (t *txn) debit(asset, user common.Address, amount *big.Int) (*big.Int, error) {
	return t.j.Debit(asset, user, amount)
}

// pull runs an inbound transfer now. refund is called if the transition later aborts.
func (t *txn) pull(ctx context.Context, do, refund func(context.Context) error) error {
	if err := do(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	t.refunds = append(t.refunds, refund)
	return nil
}

func (t *txn) push(do func(context.Context) error) {
	t.pushes = append(t.pushes, do)
}

// stamp returns the operation timestamp and advances the engine's high-water mark.
func (t *txn) stamp() int64 {
	ts := t.e.now()
	prev := t.e.lastTimestamp
	t.e.lastTimestamp = ts
	t.undo = append(t.undo, func() { t.e.lastTimestamp = prev })
	return ts
}

// newOrder assigns the next id and stores o under it.
func (t *txn) newOrder(o *Order) {
	prevCount := t.e.orderCount
	t.e.orderCount++
	o.ID = t.e.orderCount
	t.e.orders[o.ID] = o
	t.created[o.ID] = true
	t.touched[o.ID] = struct{}{}
	t.undo = append(t.undo, func() {
		delete(t.e.orders, o.ID)
		t.e.orderCount = prevCount
	})
}

// updateOrder applies mutate to the stored order, keeping a copy for undo.
func (t *txn) updateOrder(o *Order, mutate func(*Order)) {
	prev := o.clone()
	mutate(o)
	t.touched[o.ID] = struct{}{}
	t.undo = append(t.undo, func() { *o = *prev })
}

func (t *txn) emit(ev Event) {
	t.events = append(t.events, ev)
}

// rollback restores in-memory state and refunds completed pulls.
func (t *txn) rollback(ctx context.Context) {
	t.j.Revert()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	for i := len(t.refunds) - 1; i >= 0; i-- {
		if err := t.refunds[i](ctx); err != nil {
			t.e.log.Errorw("refund_failed", "err", err)
		}
	}
	t.undo, t.refunds = nil, nil
}

func (t *txn) records() []Record {
	seq := t.e.events.peekSeq()
	at := t.e.clock.Now()
	out := make([]Record, len(t.events))
	for i, ev := range t.events {
		out[i] = Record{Seq: seq + uint64(i), Time: at, Event: ev}
	}
	return out
}

func (t *txn) changeset(recs []Record) *Changeset {
	cs := &Changeset{
		Balances:      t.j.Dirty(),
		OrderCount:    t.e.orderCount,
		LastTimestamp: t.e.lastTimestamp,
		Events:        recs,
	}
	for id := range t.touched {
		cs.Orders = append(cs.Orders, t.e.orders[id].clone())
	}
	return cs
}

// revertChangeset undoes a persisted changeset. Call after rollback.
func (t *txn) revertChangeset(recs []Record) *Changeset {
	cs := &Changeset{
		Balances:      t.j.Dirty(),
		OrderCount:    t.e.orderCount,
		LastTimestamp: t.e.lastTimestamp,
	}
	for id := range t.touched {
		if t.created[id] {
			cs.DeleteOrders = append(cs.DeleteOrders, id)
			continue
		}
		cs.Orders = append(cs.Orders, t.e.orders[id].clone())
	}
	for _, r := range recs {
		cs.DropEvents = append(cs.DropEvents, r.Seq)
	}
	return cs
}

// apply runs fn as one all-or-nothing transition and publishes its events.
func (e *Engine) apply(ctx context.Context, op string, fn func(*txn) error) ([]Record, error) {
	// Publication order is taken before the state lock so observers can read the engine.
	e.events.pub.Lock()
	defer e.events.pub.Unlock()

	e.mu.Lock()
	recs, err := e.applyLocked(ctx, op, fn)
	if err != nil {
		e.mu.Unlock()
		e.log.Debugw("exchange_op_rejected", "op", op, "err", err)
		return nil, err
	}
	obs := e.events.append(recs)
	e.mu.Unlock()
	publish(recs, obs)
	return recs, nil
}

func (e *Engine) applyLocked(ctx context.Context, op string, fn func(*txn) error) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := e.begin()
	if err := fn(t); err != nil {
		t.rollback(ctx)
		return nil, err
	}

	recs := t.records()
	if e.store != nil {
		if err := e.store.Commit(t.changeset(recs)); err != nil {
			t.rollback(ctx)
			return nil, fmt.Errorf("persist %s: %w", op, err)
		}
	}

	// Each operation pushes at most once, so a failure here never strands an earlier push.
	for _, push := range t.pushes {
		if err := push(ctx); err != nil {
			t.rollback(ctx)
			if e.store != nil {
				if perr := e.store.Commit(t.revertChangeset(recs)); perr != nil {
					e.log.Errorw("revert_persist_failed", "op", op, "err", perr)
				}
			}
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	return recs, nil
}
