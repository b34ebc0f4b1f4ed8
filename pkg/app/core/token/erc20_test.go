package token

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x0000000000000000000000000000000000007047")
	deployer  = common.HexToAddress("0xD000000000000000000000000000000000000000")
	receiver  = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	exchange  = common.HexToAddress("0xEE00000000000000000000000000000000000000")
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newPort() *ERC20 {
	return NewERC20(tokenAddr, "Port", "PRT", 18, units(1_000_000), deployer)
}

func TestDeployment(t *testing.T) {
	tok := newPort()

	assert.Equal(t, "Port", tok.Name())
	assert.Equal(t, "PRT", tok.Symbol())
	assert.Equal(t, uint8(18), tok.Decimals())
	assert.Equal(t, units(1_000_000).String(), tok.TotalSupply().String())
	assert.Equal(t, units(1_000_000).String(), tok.BalanceOf(deployer).String())
}

func TestTransfer(t *testing.T) {
	tok := newPort()

	require.NoError(t, tok.Transfer(deployer, receiver, units(10)))
	assert.Equal(t, units(999_990).String(), tok.BalanceOf(deployer).String())
	assert.Equal(t, units(10).String(), tok.BalanceOf(receiver).String())

	logs := tok.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, LogTransfer, last.Kind)
	assert.Equal(t, deployer, last.From)
	assert.Equal(t, receiver, last.To)
	assert.Equal(t, units(10).String(), last.Value.String())
}

func TestTransferRejections(t *testing.T) {
	tok := newPort()

	err := tok.Transfer(deployer, receiver, units(100_000_000))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, units(1_000_000).String(), tok.BalanceOf(deployer).String())

	err = tok.Transfer(deployer, common.Address{}, units(10))
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestApprove(t *testing.T) {
	tok := newPort()

	require.NoError(t, tok.Approve(deployer, exchange, units(100)))
	assert.Equal(t, units(100).String(), tok.Allowance(deployer, exchange).String())

	logs := tok.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, LogApproval, last.Kind)
	assert.Equal(t, deployer, last.From)
	assert.Equal(t, exchange, last.To)

	assert.ErrorIs(t, tok.Approve(deployer, common.Address{}, units(1)), ErrInvalidRecipient)
}

func TestTransferFrom(t *testing.T) {
	tok := newPort()
	require.NoError(t, tok.Approve(deployer, exchange, units(10)))

	require.NoError(t, tok.TransferFrom(exchange, deployer, receiver, units(10)))
	assert.Equal(t, units(999_990).String(), tok.BalanceOf(deployer).String())
	assert.Equal(t, units(10).String(), tok.BalanceOf(receiver).String())
	assert.Equal(t, "0", tok.Allowance(deployer, exchange).String())
}

func TestTransferFromRejections(t *testing.T) {
	tok := newPort()
	require.NoError(t, tok.Approve(deployer, exchange, units(10)))

	err := tok.TransferFrom(exchange, deployer, receiver, units(100_000_000))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	err = tok.TransferFrom(exchange, deployer, receiver, units(100))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	err = tok.TransferFrom(exchange, deployer, common.Address{}, units(10))
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	// failed attempts leave the allowance untouched
	assert.Equal(t, units(10).String(), tok.Allowance(deployer, exchange).String())
}

func TestSessionActsAsCaller(t *testing.T) {
	reg := NewRegistry()
	tok := newPort()
	require.NoError(t, reg.Deploy(tok))
	require.Error(t, reg.Deploy(newPort()))

	ctx := context.Background()
	require.NoError(t, tok.Approve(deployer, exchange, units(5)))

	adapter, err := reg.Bind(tokenAddr, exchange)
	require.NoError(t, err)
	require.NoError(t, adapter.TransferFrom(ctx, deployer, exchange, units(5)))
	require.NoError(t, adapter.Transfer(ctx, receiver, units(2)))

	bal, err := adapter.BalanceOf(ctx, exchange)
	require.NoError(t, err)
	assert.Equal(t, units(3).String(), bal.String())

	_, err = reg.Bind(common.HexToAddress("0x1234"), exchange)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestStateRestore(t *testing.T) {
	tok := newPort()
	require.NoError(t, tok.Transfer(deployer, receiver, units(5)))
	require.NoError(t, tok.Approve(receiver, exchange, units(2)))

	back := Restore(tok.State())

	assert.Equal(t, tok.Name(), back.Name())
	assert.Equal(t, units(5).String(), back.BalanceOf(receiver).String())
	assert.Equal(t, units(2).String(), back.Allowance(receiver, exchange).String())
	assert.Equal(t, tok.TotalSupply().String(), back.TotalSupply().String())

	require.NoError(t, back.TransferFrom(exchange, receiver, deployer, units(2)))
	assert.Equal(t, units(5).String(), tok.BalanceOf(receiver).String(), "restored copy is independent")
}
