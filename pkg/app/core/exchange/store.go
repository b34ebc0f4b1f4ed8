package exchange

import "github.com/uhyunpark/portex/pkg/app/core/ledger"

// Snapshot is the full persisted state of an engine.
type Snapshot struct {
	Balances      []ledger.Balance
	Orders        []*Order
	OrderCount    uint64
	LastTimestamp int64
	Events        []Record
}

// Changeset is what one committed transition wrote.
// DeleteOrders and DropEvents are only set when a persisted transition is rolled back.
type Changeset struct {
	Balances      []ledger.Balance
	Orders        []*Order
	DeleteOrders  []uint64
	OrderCount    uint64
	LastTimestamp int64
	Events        []Record
	DropEvents    []uint64
}

// Store persists engine state. Commit must apply the changeset atomically.
type Store interface {
	// Load returns nil, nil for an empty store.
	Load() (*Snapshot, error)
	Commit(cs *Changeset) error
}
