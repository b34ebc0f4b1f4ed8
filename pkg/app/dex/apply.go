package dex

import (
	"context"
	"fmt"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/token"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
)

// applyTx executes one transaction and returns its receipt.
// The sender's nonce is consumed whether or not the action succeeds.
func (a *App) applyTx(ctx context.Context, tx *transaction.Verified, height uint64) *Receipt {
	r := &Receipt{Hash: tx.Hash, Type: tx.Type, From: tx.From, Nonce: tx.Nonce, Height: height}

	a.mu.Lock()
	if tx.Nonce <= a.nonces[tx.From] {
		a.mu.Unlock()
		r.Status, r.Error = StatusFailed, fmt.Sprintf("%v: %d", ErrStaleNonce, tx.Nonce)
		return r
	}
	a.nonces[tx.From] = tx.Nonce
	a.mu.Unlock()

	var events []exchange.Record
	a.collectMu.Lock()
	a.collecting = &events
	a.collectMu.Unlock()

	err := a.dispatch(ctx, tx.Action)

	a.collectMu.Lock()
	a.collecting = nil
	a.collectMu.Unlock()

	if err != nil {
		r.Status, r.Error = StatusFailed, err.Error()
		a.log.Debugw("tx_failed", "hash", tx.Hash.Hex(), "type", tx.Type, "from", tx.From.Hex(), "err", err)
		return r
	}
	r.Status, r.Events = StatusSuccess, events
	return r
}

func (a *App) dispatch(ctx context.Context, act *transaction.Action) error {
	ex := a.engine
	var err error
	switch act.Type {
	case transaction.TxDepositEther:
		_, err = ex.DepositEther(ctx, act.From, act.Amount)
	case transaction.TxWithdrawEther:
		_, err = ex.WithdrawEther(ctx, act.From, act.Amount)
	case transaction.TxDepositToken:
		_, err = ex.DepositToken(ctx, act.From, act.Token, act.Amount)
	case transaction.TxWithdrawToken:
		_, err = ex.WithdrawToken(ctx, act.From, act.Token, act.Amount)
	case transaction.TxMakeOrder:
		_, err = ex.MakeOrder(ctx, act.From, act.TokenGet, act.AmountGet, act.TokenGive, act.AmountGive)
	case transaction.TxCancelOrder:
		_, err = ex.CancelOrder(ctx, act.From, act.OrderID)
	case transaction.TxFillOrder:
		_, err = ex.FillOrder(ctx, act.From, act.OrderID)
	case transaction.TxTokenTransfer:
		var tok *token.ERC20
		if tok, err = a.token(act); err == nil {
			err = tok.Transfer(act.From, act.To, act.Amount)
		}
	case transaction.TxTokenApprove:
		var tok *token.ERC20
		if tok, err = a.token(act); err == nil {
			err = tok.Approve(act.From, act.To, act.Amount)
		}
	default:
		err = fmt.Errorf("%w: type %q", transaction.ErrMalformed, act.Type)
	}
	return err
}

func (a *App) token(act *transaction.Action) (*token.ERC20, error) {
	tok, ok := a.tokens.Get(act.Token)
	if !ok {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownToken, act.Token.Hex())
	}
	return tok, nil
}
