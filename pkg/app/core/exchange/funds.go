package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/token"
)

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

func (e *Engine) bind(asset common.Address) (token.Adapter, error) {
	if asset == Ether {
		return nil, fmt.Errorf("%w: ether is not a token", ErrInvalidAsset)
	}
	a, err := e.tokens.Bind(asset, e.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}
	return a, nil
}

// DepositEther moves value wei from user into custody and credits the user.
func (e *Engine) DepositEther(ctx context.Context, user common.Address, value *big.Int) (*DepositEvent, error) {
	if err := validAmount(value); err != nil {
		return nil, err
	}
	var ev *DepositEvent
	_, err := e.apply(ctx, "deposit_ether", func(t *txn) error {
		err := t.pull(ctx,
			func(ctx context.Context) error { return e.vault.Transfer(ctx, user, e.cfg.Address, value) },
			func(ctx context.Context) error { return e.vault.Transfer(ctx, e.cfg.Address, user, value) },
		)
		if err != nil {
			return err
		}
		bal, err := t.credit(Ether, user, value)
		if err != nil {
			return err
		}
		ev = &DepositEvent{Token: Ether, User: user, Amount: new(big.Int).Set(value), Balance: bal}
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("deposit", "token", Ether.Hex(), "user", user.Hex(), "amount", value.String())
	return ev, nil
}

// WithdrawEther debits the user and sends amount wei back to them.
func (e *Engine) WithdrawEther(ctx context.Context, user common.Address, amount *big.Int) (*WithdrawEvent, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	var ev *WithdrawEvent
	_, err := e.apply(ctx, "withdraw_ether", func(t *txn) error {
		bal, err := t.debit(Ether, user, amount)
		if err != nil {
			return err
		}
		t.push(func(ctx context.Context) error { return e.vault.Transfer(ctx, e.cfg.Address, user, amount) })
		ev = &WithdrawEvent{Token: Ether, User: user, Amount: new(big.Int).Set(amount), Balance: bal}
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("withdraw", "token", Ether.Hex(), "user", user.Hex(), "amount", amount.String())
	return ev, nil
}

// DepositToken pulls amount of asset from user, using the allowance user granted the exchange.
func (e *Engine) DepositToken(ctx context.Context, user, asset common.Address, amount *big.Int) (*DepositEvent, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	tok, err := e.bind(asset)
	if err != nil {
		return nil, err
	}
	var ev *DepositEvent
	_, err = e.apply(ctx, "deposit_token", func(t *txn) error {
		err := t.pull(ctx,
			func(ctx context.Context) error { return tok.TransferFrom(ctx, user, e.cfg.Address, amount) },
			func(ctx context.Context) error { return tok.Transfer(ctx, user, amount) },
		)
		if err != nil {
			return err
		}
		bal, err := t.credit(asset, user, amount)
		if err != nil {
			return err
		}
		ev = &DepositEvent{Token: asset, User: user, Amount: new(big.Int).Set(amount), Balance: bal}
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("deposit", "token", asset.Hex(), "user", user.Hex(), "amount", amount.String())
	return ev, nil
}

// WithdrawToken debits the user and transfers amount of asset back to them.
func (e *Engine) WithdrawToken(ctx context.Context, user, asset common.Address, amount *big.Int) (*WithdrawEvent, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	tok, err := e.bind(asset)
	if err != nil {
		return nil, err
	}
	var ev *WithdrawEvent
	_, err = e.apply(ctx, "withdraw_token", func(t *txn) error {
		bal, err := t.debit(asset, user, amount)
		if err != nil {
			return err
		}
		t.push(func(ctx context.Context) error { return tok.Transfer(ctx, user, amount) })
		ev = &WithdrawEvent{Token: asset, User: user, Amount: new(big.Int).Set(amount), Balance: bal}
		t.emit(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debugw("withdraw", "token", asset.Hex(), "user", user.Hex(), "amount", amount.String())
	return ev, nil
}

// ReceiveEther rejects plain ether sent to the exchange outside DepositEther.
func (e *Engine) ReceiveEther(_ context.Context, from common.Address, value *big.Int) error {
	e.log.Debugw("direct_transfer_rejected", "from", from.Hex(), "value", value.String())
	return ErrDirectTransfer
}

// CheckSolvency verifies that custody of every asset covers the sum of ledger balances.
func (e *Engine) CheckSolvency(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, asset := range e.ledger.Assets() {
		owed := e.ledger.Total(asset)
		var held *big.Int
		if asset == Ether {
			held = e.vault.BalanceOf(e.cfg.Address)
		} else {
			tok, err := e.bind(asset)
			if err != nil {
				return err
			}
			if held, err = tok.BalanceOf(ctx, e.cfg.Address); err != nil {
				return fmt.Errorf("custody balance of %s: %w", asset.Hex(), err)
			}
		}
		if held.Cmp(owed) < 0 {
			return fmt.Errorf("%w: %s holds %s, owes %s", ErrInsolvent, asset.Hex(), held, owed)
		}
	}
	return nil
}
