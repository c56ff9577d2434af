package ubi

import (
	"context"
	"errors"
	"fmt"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
)

// Credit adds amount to owner's balance, creating an empty record paid for by
// payer when the owner has none yet.
func Credit(ctx context.Context, tx ledger.Tx, owner string, amount asset.Asset, payer string) (ledger.Balance, error) {
	if amount.Amount < 0 || !amount.Symbol.IsValid() {
		return ledger.Balance{}, fmt.Errorf("%w: invalid credit %s", ledger.ErrValidation, amount)
	}

	bal, err := tx.GetBalance(ctx, owner, amount.Symbol.Code)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		bal = ledger.Balance{Owner: owner, Balance: asset.New(amount.Amount, amount.Symbol), Payer: payer}
		if err := tx.InsertBalance(ctx, bal); err != nil {
			return ledger.Balance{}, err
		}
		return bal, nil
	case err != nil:
		return ledger.Balance{}, err
	}

	if bal.Balance.Symbol != amount.Symbol {
		return ledger.Balance{}, fmt.Errorf("%w: symbol precision mismatch", ledger.ErrValidation)
	}
	if amount.Amount > asset.MaxAmount-bal.Balance.Amount {
		return ledger.Balance{}, fmt.Errorf("%w: addition overflow", ledger.ErrValidation)
	}
	bal.Balance.Amount += amount.Amount
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return ledger.Balance{}, err
	}
	return bal, nil
}

// Debit subtracts amount from owner's balance.
func Debit(ctx context.Context, tx ledger.Tx, owner string, amount asset.Asset) (ledger.Balance, error) {
	if amount.Amount < 0 || !amount.Symbol.IsValid() {
		return ledger.Balance{}, fmt.Errorf("%w: invalid debit %s", ledger.ErrValidation, amount)
	}

	bal, err := tx.GetBalance(ctx, owner, amount.Symbol.Code)
	if err != nil {
		return ledger.Balance{}, err
	}
	if bal.Balance.Symbol != amount.Symbol {
		return ledger.Balance{}, fmt.Errorf("%w: symbol precision mismatch", ledger.ErrValidation)
	}
	if bal.Balance.Amount < amount.Amount {
		return ledger.Balance{}, fmt.Errorf("%w: %s has %s, needs %s", ledger.ErrOverdrawn, owner, bal.Balance, amount)
	}
	bal.Balance.Amount -= amount.Amount
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return ledger.Balance{}, err
	}
	return bal, nil
}
