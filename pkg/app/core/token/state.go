package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the persisted form of an ERC20. Logs are not kept.
type State struct {
	Address    common.Address                                 `json:"address"`
	Name       string                                         `json:"name"`
	Symbol     string                                         `json:"symbol"`
	Decimals   uint8                                          `json:"decimals"`
	Supply     *big.Int                                       `json:"supply"`
	Balances   map[common.Address]*big.Int                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]*big.Int `json:"allowances,omitempty"`
}

func (t *ERC20) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := State{
		Address:    t.address,
		Name:       t.name,
		Symbol:     t.symbol,
		Decimals:   t.decimals,
		Supply:     new(big.Int).Set(t.supply),
		Balances:   make(map[common.Address]*big.Int, len(t.balances)),
		Allowances: make(map[common.Address]map[common.Address]*big.Int, len(t.allowances)),
	}
	for addr, bal := range t.balances {
		s.Balances[addr] = new(big.Int).Set(bal)
	}
	for owner, m := range t.allowances {
		s.Allowances[owner] = make(map[common.Address]*big.Int, len(m))
		for spender, v := range m {
			s.Allowances[owner][spender] = new(big.Int).Set(v)
		}
	}
	return s
}

// Restore rebuilds a token from a persisted State.
func Restore(s State) *ERC20 {
	t := &ERC20{
		address:    s.Address,
		name:       s.Name,
		symbol:     s.Symbol,
		decimals:   s.Decimals,
		supply:     new(big.Int).Set(s.Supply),
		balances:   make(map[common.Address]*big.Int, len(s.Balances)),
		allowances: make(map[common.Address]map[common.Address]*big.Int, len(s.Allowances)),
	}
	for addr, bal := range s.Balances {
		t.balances[addr] = new(big.Int).Set(bal)
	}
	for owner, m := range s.Allowances {
		t.allowances[owner] = make(map[common.Address]*big.Int, len(m))
		for spender, v := range m {
			t.allowances[owner][spender] = new(big.Int).Set(v)
		}
	}
	return t
}
