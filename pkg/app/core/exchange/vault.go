package exchange

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// EtherVault moves native ether between accounts.
type EtherVault interface {
	Transfer(ctx context.Context, from, to common.Address, wei *big.Int) error
	BalanceOf(who common.Address) *big.Int
}

// attachedVault models ether that arrives attached to the call itself:
// pulls into the owner always succeed and pushes spend what was pulled.
type attachedVault struct {
	mu    sync.Mutex
	owner common.Address
	held  *big.Int
}

func newAttachedVault(owner common.Address) *attachedVault {
	return &attachedVault{owner: owner, held: new(big.Int)}
}

func (v *attachedVault) Transfer(_ context.Context, from, to common.Address, wei *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case to == v.owner && from != v.owner:
		v.held.Add(v.held, wei)
	case from == v.owner && to != v.owner:
		if v.held.Cmp(wei) < 0 {
			return fmt.Errorf("vault holds %s, need %s", v.held, wei)
		}
		v.held.Sub(v.held, wei)
	}
	return nil
}

func (v *attachedVault) BalanceOf(who common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if who != v.owner {
		return new(big.Int)
	}
	return new(big.Int).Set(v.held)
}
