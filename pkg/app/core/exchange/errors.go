package exchange

import (
	"errors"

	"github.com/uhyunpark/portex/pkg/app/core/ledger"
)

var (
	ErrInvalidAsset        = errors.New("invalid asset")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrTransferFailed      = errors.New("transfer failed")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyFilled       = errors.New("order already filled")
	ErrAlreadyCancelled    = errors.New("order already cancelled")
	ErrDirectTransfer      = errors.New("exchange does not accept direct ether transfers")
	ErrInsolvent           = errors.New("custody does not cover ledger")
)
