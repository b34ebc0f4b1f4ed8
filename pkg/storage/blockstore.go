package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/dex"
)

// InMemoryBlockStore is a dex.ChainStore for nodes running without a data directory.
type InMemoryBlockStore struct {
	mu       sync.Mutex
	blocks   map[uint64]*dex.Block
	receipts map[common.Hash]*dex.Receipt
	state    *dex.ChainState
	head     *dex.Block
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks:   make(map[uint64]*dex.Block),
		receipts: make(map[common.Hash]*dex.Receipt),
	}
}

func (s *InMemoryBlockStore) LoadChain() (*dex.ChainState, *dex.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.head, nil
}

// SaveBlock ignores engine changes; the engine keeps its own state in memory.
func (s *InMemoryBlockStore) SaveBlock(b *dex.Block, receipts []*dex.Receipt, state *dex.ChainState, _ []*exchange.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	for _, r := range receipts {
		s.receipts[r.Hash] = r
	}
	s.state, s.head = state, b
	return nil
}

func (s *InMemoryBlockStore) Receipt(hash common.Hash) (*dex.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[hash], nil
}

func (s *InMemoryBlockStore) BlockByHeight(height uint64) (*dex.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[height], nil
}

var _ dex.ChainStore = (*InMemoryBlockStore)(nil)
