package mempool

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/transaction"
)

// Bucket is the block-ordering class of a transaction.
type Bucket int

const (
	BucketNonOrder Bucket = iota // deposits, withdrawals, token transfers and approvals
	BucketCancel
	BucketOrder // make_order, fill_order
)

var ErrDuplicate = errors.New("transaction already pending")

func Classify(t transaction.TxType) Bucket {
	switch {
	case t == transaction.TxCancelOrder:
		return BucketCancel
	case t.IsOrderFlow():
		return BucketOrder
	default:
		return BucketNonOrder
	}
}

// Mempool keeps three FIFO queues drained in order: non-order, cancel, order.
// Funds land before orders that need them, and cancels beat fills in the same block.
type Mempool struct {
	mu       sync.Mutex
	nonOrder []*transaction.Verified
	cancel   []*transaction.Verified
	orders   []*transaction.Verified
	pending  map[common.Hash]struct{}
}

func NewMempool() *Mempool {
	return &Mempool{pending: make(map[common.Hash]struct{})}
}

// Push enqueues a verified transaction.
func (m *Mempool) Push(tx *transaction.Verified) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[tx.Hash]; ok {
		return ErrDuplicate
	}
	m.pending[tx.Hash] = struct{}{}
	switch Classify(tx.Type) {
	case BucketNonOrder:
		m.nonOrder = append(m.nonOrder, tx)
	case BucketCancel:
		m.cancel = append(m.cancel, tx)
	default:
		m.orders = append(m.orders, tx)
	}
	return nil
}

// SelectForProposal removes and returns up to maxBytes of raw tx size in bucket order.
// maxBytes <= 0 means no limit. A bucket stops at the first tx that does not fit.
func (m *Mempool) SelectForProposal(maxBytes int64) []*transaction.Verified {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*transaction.Verified
	var used int64

	pull := func(q *[]*transaction.Verified) {
		for len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx.Raw))
			if maxBytes > 0 && used+n > maxBytes {
				return
			}
			out = append(out, tx)
			used += n
			delete(m.pending, tx.Hash)
			*q = (*q)[1:]
		}
	}

	pull(&m.nonOrder)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Has reports whether hash is waiting for inclusion.
func (m *Mempool) Has(hash common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[hash]
	return ok
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonOrder) + len(m.cancel) + len(m.orders)
}
