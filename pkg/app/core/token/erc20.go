package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// LogKind names an ERC-20 event.
type LogKind string

const (
	LogTransfer LogKind = "Transfer"
	LogApproval LogKind = "Approval"
)

// Log is an ERC-20 Transfer or Approval event.
// For approvals From is the owner and To the spender.
type Log struct {
	Kind  LogKind        `json:"kind"`
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

// ERC20 is an in-process fungible token with standard ERC-20 semantics.
// Balances and allowances are guarded by a single mutex.
type ERC20 struct {
	address  common.Address
	name     string
	symbol   string
	decimals uint8
	supply   *big.Int

	mu         sync.RWMutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	logs       []Log
}

// NewERC20 deploys a token and assigns the whole supply to deployer.
func NewERC20(address common.Address, name, symbol string, decimals uint8, supply *big.Int, deployer common.Address) *ERC20 {
	t := &ERC20{
		address:    address,
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(big.Int).Set(supply),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	t.balances[deployer] = new(big.Int).Set(supply)
	t.logs = append(t.logs, Log{Kind: LogTransfer, To: deployer, Value: new(big.Int).Set(supply)})
	return t
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }
func (t *ERC20) TotalSupply() *big.Int   { return new(big.Int).Set(t.supply) }

func (t *ERC20) BalanceOf(who common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(who)
}

func (t *ERC20) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Transfer moves amount from caller to `to`.
func (t *ERC20) Transfer(caller, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(caller, to, amount)
}

// Approve sets spender's allowance over caller's tokens, replacing any previous value.
func (t *ERC20) Approve(caller, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("token: negative approval %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	spenders, ok := t.allowances[caller]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[caller] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	t.logs = append(t.logs, Log{Kind: LogApproval, From: caller, To: spender, Value: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom moves amount from `from` to `to`, spending caller's allowance.
func (t *ERC20) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := new(big.Int)
	if a, ok := t.allowances[from][caller]; ok {
		allowed = a
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowed %s, need %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][caller] = new(big.Int).Sub(allowed, amount)
	return nil
}

// Logs returns a copy of every event emitted so far.
func (t *ERC20) Logs() []Log {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Log, len(t.logs))
	copy(out, t.logs)
	return out
}

// Holders returns every address that has ever held a balance.
func (t *ERC20) Holders() map[common.Address]*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(t.balances))
	for addr, bal := range t.balances {
		out[addr] = new(big.Int).Set(bal)
	}
	return out
}

func (t *ERC20) balanceLocked(who common.Address) *big.Int {
	if b, ok := t.balances[who]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *ERC20) transferLocked(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("token: negative transfer %s", amount)
	}
	bal := t.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	t.logs = append(t.logs, Log{Kind: LogTransfer, From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}

// Session binds the token to a caller so it satisfies Adapter.
type Session struct {
	Token  *ERC20
	Caller common.Address
}

func (s Session) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	return s.Token.Transfer(s.Caller, to, amount)
}

func (s Session) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	return s.Token.TransferFrom(s.Caller, from, to, amount)
}

func (s Session) BalanceOf(_ context.Context, who common.Address) (*big.Int, error) {
	return s.Token.BalanceOf(who), nil
}

var _ Adapter = Session{}
