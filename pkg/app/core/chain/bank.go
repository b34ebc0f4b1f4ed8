// Package chain keeps native Ether balances for wallets outside the exchange.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientFunds = errors.New("chain: insufficient funds")

// Bank is the native-asset account table (wallet balances, in wei).
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

func NewBank(alloc map[common.Address]*big.Int) *Bank {
	b := &Bank{balances: make(map[common.Address]*big.Int, len(alloc))}
	for addr, wei := range alloc {
		b.balances[addr] = new(big.Int).Set(wei)
	}
	return b
}

func (b *Bank) BalanceOf(who common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceLocked(who)
}

// Mint credits wei out of thin air (faucet / genesis only).
func (b *Bank) Mint(to common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] = new(big.Int).Add(b.balanceLocked(to), wei)
}

// Transfer moves wei between two wallets.
func (b *Bank) Transfer(_ context.Context, from, to common.Address, wei *big.Int) error {
	if wei.Sign() < 0 {
		return fmt.Errorf("chain: negative value %s", wei)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balanceLocked(from)
	if bal.Cmp(wei) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), bal, wei)
	}
	b.balances[from] = bal.Sub(bal, wei)
	b.balances[to] = new(big.Int).Add(b.balanceLocked(to), wei)
	return nil
}

// Accounts returns addresses with a balance, sorted.
func (b *Bank) Accounts() []common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]common.Address, 0, len(b.balances))
	for addr := range b.balances {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (b *Bank) balanceLocked(who common.Address) *big.Int {
	if bal, ok := b.balances[who]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}
