package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/ledger"
	"github.com/uhyunpark/portex/pkg/app/dex"
)

// PebbleStore persists exchange state and the block chain in one Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// get returns nil, nil when key is absent.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *PebbleStore) getU64(key []byte) (uint64, bool, error) {
	val, err := s.get(key)
	if err != nil || val == nil {
		return 0, false, err
	}
	v, err := decodeU64(val)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

// scan calls fn for every value under prefix, starting at from (inclusive) if set.
func (s *PebbleStore) scan(prefix, from []byte, fn func(val []byte) (more bool, err error)) error {
	lower := prefix
	if from != nil {
		lower = from
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		more, err := fn(iter.Value())
		if err != nil {
			return fmt.Errorf("%s: %w", iter.Key(), err)
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// ============================================================================
// exchange.Store
// ============================================================================

func (s *PebbleStore) Load() (*exchange.Snapshot, error) {
	count, found, err := s.getU64(keyOrderCount)
	if err != nil {
		return nil, err
	}
	lastTS, _, err := s.getU64(keyLastTS)
	if err != nil {
		return nil, err
	}
	snap := &exchange.Snapshot{OrderCount: count, LastTimestamp: int64(lastTS)}

	err = s.scan([]byte(prefixBalance), nil, func(val []byte) (bool, error) {
		var b ledger.Balance
		if err := decodeJSON(val, &b); err != nil {
			return false, err
		}
		snap.Balances = append(snap.Balances, b)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan([]byte(prefixOrder), nil, func(val []byte) (bool, error) {
		var o exchange.Order
		if err := decodeJSON(val, &o); err != nil {
			return false, err
		}
		snap.Orders = append(snap.Orders, &o)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if snap.Events, err = s.Events(0, 0); err != nil {
		return nil, err
	}

	if !found && len(snap.Balances) == 0 && len(snap.Orders) == 0 && len(snap.Events) == 0 {
		return nil, nil
	}
	return snap, nil
}

// Commit writes a changeset in one synced batch. Zero balances are deleted.
func (s *PebbleStore) Commit(cs *exchange.Changeset) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := writeChangeset(batch, cs); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit exchange changeset: %w", err)
	}
	return nil
}

func writeChangeset(batch *pebble.Batch, cs *exchange.Changeset) error {
	for _, b := range cs.Balances {
		key := balanceKey(b.Asset, b.User)
		if b.Amount.Sign() == 0 {
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
			continue
		}
		val, err := encodeJSON(b)
		if err != nil {
			return err
		}
		if err := batch.Set(key, val, nil); err != nil {
			return err
		}
	}
	for _, o := range cs.Orders {
		val, err := encodeJSON(o)
		if err != nil {
			return err
		}
		if err := batch.Set(orderKey(o.ID), val, nil); err != nil {
			return err
		}
	}
	for _, id := range cs.DeleteOrders {
		if err := batch.Delete(orderKey(id), nil); err != nil {
			return err
		}
	}
	for _, r := range cs.Events {
		val, err := encodeJSON(r)
		if err != nil {
			return err
		}
		if err := batch.Set(eventKey(r.Seq), val, nil); err != nil {
			return err
		}
	}
	for _, seq := range cs.DropEvents {
		if err := batch.Delete(eventKey(seq), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(keyOrderCount, encodeU64(cs.OrderCount), nil); err != nil {
		return err
	}
	return batch.Set(keyLastTS, encodeU64(uint64(cs.LastTimestamp)), nil)
}

// Events returns up to limit records with Seq >= from. limit <= 0 means all.
func (s *PebbleStore) Events(from uint64, limit int) ([]exchange.Record, error) {
	var out []exchange.Record
	err := s.scan([]byte(prefixEvent), eventKey(from), func(val []byte) (bool, error) {
		var r exchange.Record
		if err := decodeJSON(val, &r); err != nil {
			return false, err
		}
		out = append(out, r)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

var _ exchange.Store = (*PebbleStore)(nil)

// ============================================================================
// dex.ChainStore
// ============================================================================

func (s *PebbleStore) LoadChain() (*dex.ChainState, *dex.Block, error) {
	val, err := s.get(keyChain)
	if err != nil || val == nil {
		return nil, nil, err
	}
	var state dex.ChainState
	if err := decodeJSON(val, &state); err != nil {
		return nil, nil, err
	}
	head, found, err := s.getU64(keyHead)
	if err != nil || !found {
		return &state, nil, err
	}
	b, err := s.BlockByHeight(head)
	if err != nil {
		return nil, nil, err
	}
	return &state, b, nil
}

// SaveBlock writes the block, its receipts, chain state and the engine changes in one synced batch.
// Changes are applied in order, so a later changeset overrides an earlier one.
func (s *PebbleStore) SaveBlock(b *dex.Block, receipts []*dex.Receipt, state *dex.ChainState, changes []*exchange.Changeset) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, cs := range changes {
		if err := writeChangeset(batch, cs); err != nil {
			return err
		}
	}

	val, err := encodeJSON(b)
	if err != nil {
		return err
	}
	if err := batch.Set(blockKey(b.Height), val, nil); err != nil {
		return err
	}
	for _, r := range receipts {
		if val, err = encodeJSON(r); err != nil {
			return err
		}
		if err := batch.Set(receiptKey(r.Hash), val, nil); err != nil {
			return err
		}
	}
	if val, err = encodeJSON(state); err != nil {
		return err
	}
	if err := batch.Set(keyChain, val, nil); err != nil {
		return err
	}
	if err := batch.Set(keyHead, encodeU64(b.Height), nil); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit block %d: %w", b.Height, err)
	}
	return nil
}

func (s *PebbleStore) Receipt(hash common.Hash) (*dex.Receipt, error) {
	val, err := s.get(receiptKey(hash))
	if err != nil || val == nil {
		return nil, err
	}
	var r dex.Receipt
	if err := decodeJSON(val, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// BlockByHeight returns nil, nil for an unknown height.
func (s *PebbleStore) BlockByHeight(height uint64) (*dex.Block, error) {
	val, err := s.get(blockKey(height))
	if err != nil || val == nil {
		return nil, err
	}
	var b dex.Block
	if err := decodeJSON(val, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

var _ dex.ChainStore = (*PebbleStore)(nil)
