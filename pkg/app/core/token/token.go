// Package token is the exchange's view of fungible token contracts.
//
// The engine never moves tokens itself: it asks an Adapter, bound to the engine's own
// address as caller, to pull tokens in (TransferFrom) or push them out (Transfer).
package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidRecipient      = errors.New("token: invalid recipient")
	ErrUnknownToken          = errors.New("token: unknown token")
)

// Adapter is a token contract as seen by one caller (msg.sender).
type Adapter interface {
	// Transfer moves amount from the bound caller to `to`.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	// TransferFrom moves amount from `from` to `to` using the caller's allowance.
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, who common.Address) (*big.Int, error)
}

// Resolver binds a token address to an Adapter acting as caller.
type Resolver interface {
	Bind(token, caller common.Address) (Adapter, error)
}
