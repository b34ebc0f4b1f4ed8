package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry holds every token deployed on this node, keyed by contract address.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*ERC20
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]*ERC20)}
}

// Deploy registers t; a second token at the same address is rejected.
func (r *Registry) Deploy(t *ERC20) error {
	if t.Address() == (common.Address{}) {
		return fmt.Errorf("token: cannot deploy %s at the zero address", t.Symbol())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[t.Address()]; exists {
		return fmt.Errorf("token: address %s already in use", t.Address().Hex())
	}
	r.tokens[t.Address()] = t
	return nil
}

func (r *Registry) Get(addr common.Address) (*ERC20, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// List returns tokens sorted by address.
func (r *Registry) List() []*ERC20 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ERC20, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Cmp(out[j].Address()) < 0
	})
	return out
}

func (r *Registry) Bind(tokenAddr, caller common.Address) (Adapter, error) {
	t, ok := r.Get(tokenAddr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	return Session{Token: t, Caller: caller}, nil
}

var _ Resolver = (*Registry)(nil)
