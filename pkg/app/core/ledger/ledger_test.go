package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	prt   = common.HexToAddress("0x0000000000000000000000000000000000007047")
)

func TestCreditDebit(t *testing.T) {
	l := New()
	j := l.Begin()

	bal, err := j.Credit(Ether, alice, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	bal, err = j.Debit(Ether, alice, big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String())

	_, err = j.Debit(Ether, alice, big.NewInt(7))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "6", l.Get(Ether, alice).String())

	_, err = j.Credit(Ether, alice, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestGetReturnsCopy(t *testing.T) {
	l := New()
	_, err := l.Begin().Credit(prt, alice, big.NewInt(5))
	require.NoError(t, err)

	got := l.Get(prt, alice)
	got.SetInt64(1000)
	assert.Equal(t, "5", l.Get(prt, alice).String())
	assert.Equal(t, "0", l.Get(prt, bob).String())
}

func TestRevertRestoresAbsentRows(t *testing.T) {
	l := New()
	_, _ = l.Begin().Credit(prt, alice, big.NewInt(3))

	j := l.Begin()
	_, _ = j.Credit(prt, alice, big.NewInt(2))
	_, _ = j.Credit(prt, bob, big.NewInt(9))
	_, _ = j.Debit(prt, alice, big.NewInt(5))
	j.Revert()

	assert.Equal(t, "3", l.Get(prt, alice).String())
	assert.Len(t, l.Entries(), 1, "bob's row must disappear, not linger at zero")
}

func TestEntriesAndTotals(t *testing.T) {
	l := New()
	j := l.Begin()
	_, _ = j.Credit(prt, bob, big.NewInt(2))
	_, _ = j.Credit(Ether, alice, big.NewInt(1))
	_, _ = j.Credit(prt, alice, big.NewInt(3))

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Ether, entries[0].Asset)
	assert.Equal(t, alice, entries[1].User)
	assert.Equal(t, bob, entries[2].User)

	assert.Equal(t, "5", l.Total(prt).String())
	assert.Equal(t, []common.Address{Ether, prt}, l.Assets())
	assert.Len(t, l.UserBalances(alice), 2)
	assert.Len(t, j.Dirty(), 3)
}
