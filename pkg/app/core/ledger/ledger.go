// Package ledger holds custodial balances keyed by (asset, user).
//
// Ether is the zero address; every other asset is a token contract address.
// Mutation goes through a Journal so a failed operation can be undone exactly.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Ether is the sentinel asset id for the native asset.
var Ether = common.Address{}

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("negative amount")
)

type Key struct {
	Asset common.Address
	User  common.Address
}

// Balance is one ledger row.
type Balance struct {
	Asset  common.Address `json:"asset"`
	User   common.Address `json:"user"`
	Amount *big.Int       `json:"amount"`
}

// Ledger is not safe for concurrent use; the exchange engine serializes access.
type Ledger struct {
	balances map[Key]*big.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[Key]*big.Int)}
}

// Load seeds the ledger from persisted rows.
func (l *Ledger) Load(rows []Balance) {
	for _, r := range rows {
		l.set(Key{Asset: r.Asset, User: r.User}, r.Amount)
	}
}

// Get returns a copy of the balance, zero if absent.
func (l *Ledger) Get(asset, user common.Address) *big.Int {
	if b, ok := l.balances[Key{Asset: asset, User: user}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Total sums every user's balance of asset.
func (l *Ledger) Total(asset common.Address) *big.Int {
	sum := new(big.Int)
	for k, v := range l.balances {
		if k.Asset == asset {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Assets returns every asset with at least one row, sorted.
func (l *Ledger) Assets() []common.Address {
	seen := make(map[common.Address]struct{})
	for k := range l.balances {
		seen[k.Asset] = struct{}{}
	}
	out := make([]common.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Entries returns every row sorted by (asset, user). Used for state hashing and snapshots.
func (l *Ledger) Entries() []Balance {
	out := make([]Balance, 0, len(l.balances))
	for k, v := range l.balances {
		out = append(out, Balance{Asset: k.Asset, User: k.User, Amount: new(big.Int).Set(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Asset[:], out[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].User[:], out[j].User[:]) < 0
	})
	return out
}

// UserBalances returns every asset the user holds a row for.
func (l *Ledger) UserBalances(user common.Address) []Balance {
	var out []Balance
	for _, b := range l.Entries() {
		if b.User == user {
			out = append(out, b)
		}
	}
	return out
}

func (l *Ledger) set(k Key, v *big.Int) {
	if v == nil {
		delete(l.balances, k)
		return
	}
	l.balances[k] = new(big.Int).Set(v)
}

// Begin opens a journal over l.
func (l *Ledger) Begin() *Journal {
	return &Journal{l: l, touched: make(map[Key]struct{})}
}

type undoEntry struct {
	key  Key
	prev *big.Int // nil means the row did not exist
}

// Journal records the previous value of every row it changes.
type Journal struct {
	l       *Ledger
	undo    []undoEntry
	touched map[Key]struct{}
}

func (j *Journal) record(k Key) {
	var prev *big.Int
	if b, ok := j.l.balances[k]; ok {
		prev = new(big.Int).Set(b)
	}
	j.undo = append(j.undo, undoEntry{key: k, prev: prev})
	j.touched[k] = struct{}{}
}

// Credit adds amount and returns the new balance.
func (j *Journal) Credit(asset, user common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("credit %s: %w", amount, ErrNegativeAmount)
	}
	k := Key{Asset: asset, User: user}
	j.record(k)
	next := j.l.Get(asset, user)
	next.Add(next, amount)
	j.l.set(k, next)
	return next, nil
}

// Debit subtracts amount and returns the new balance. The row is untouched on error.
func (j *Journal) Debit(asset, user common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("debit %s: %w", amount, ErrNegativeAmount)
	}
	cur := j.l.Get(asset, user)
	if cur.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, cur, amount)
	}
	k := Key{Asset: asset, User: user}
	j.record(k)
	next := cur.Sub(cur, amount)
	j.l.set(k, next)
	return next, nil
}

// Revert restores every row in reverse order of modification.
func (j *Journal) Revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		u := j.undo[i]
		j.l.set(u.key, u.prev)
	}
	j.undo = nil
}

// Dirty returns the current value of every row the journal touched.
func (j *Journal) Dirty() []Balance {
	out := make([]Balance, 0, len(j.touched))
	for k := range j.touched {
		out = append(out, Balance{Asset: k.Asset, User: k.User, Amount: j.l.Get(k.Asset, k.User)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Asset[:], out[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].User[:], out[j].User[:]) < 0
	})
	return out
}
