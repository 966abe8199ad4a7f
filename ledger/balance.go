/*
balance.go - The Balance Engine

PURPOSE:
  The only code allowed to write an account's balance fields. Posting
  moves both CurrentBalance and AvailableBalance by the same delta, so
  the invariant available <= current is preserved by construction
  (holds, which widen the gap, are placed by collaborators outside this
  engine's scope and always lower available only).

POSTING:
  Adjust(store, account, amount, credit) applies a single delta. For a
  debit it first checks the available balance and fails with
  InsufficientFundsError without touching anything.

RECONCILIATION:
  Recalculate rebuilds a balance from the full processed-transaction
  history:

    balance = sum(income, processed) - sum(expense, processed)

  and writes it back as both fields. This is a drift-correction tool,
  never part of normal posting.

CRITICAL RULE:
  Every successful Adjust must happen in the same store transaction as
  the Transaction/FutureTransaction status change that caused it. The
  engine therefore takes the Store as an argument: callers pass the
  transactional view they got from TxStore.WithTx.

SEE ALSO:
  - banking/lifecycle.go: pairs Adjust with transaction status changes
  - banking/future.go:    pairs Adjust with trigger processing
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE ENGINE
// =============================================================================

// BalanceEngine applies credit/debit deltas and reconstructs balances
// from history. It is stateless; the Store is an argument so that every
// adjustment composes into the caller's unit of work.
type BalanceEngine struct{}

// Adjust applies amount to the account's balances. credit=true
// increments both fields, credit=false decrements both.
//
// Preconditions: amount > 0. A debit larger than the available balance
// fails with InsufficientFundsError and writes nothing.
func (e *BalanceEngine) Adjust(ctx context.Context, s Store, accountID AccountID, amount decimal.Decimal, credit bool) (*Account, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	delta := amount
	if !credit {
		if account.AvailableBalance.LessThan(amount) {
			return nil, &InsufficientFundsError{
				AccountID: accountID,
				Available: account.AvailableBalance,
				Requested: amount,
			}
		}
		delta = amount.Neg()
	}

	account.CurrentBalance = account.CurrentBalance.Add(delta)
	account.AvailableBalance = account.AvailableBalance.Add(delta)
	account.UpdatedAt = time.Now().UTC()

	if err := s.SaveAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("save account %s: %w", accountID, err)
	}
	return account, nil
}

// Recalculate rebuilds the account's balance from its processed
// transaction history and writes it back as both balance fields.
// Returns the corrected account.
func (e *BalanceEngine) Recalculate(ctx context.Context, s Store, accountID AccountID) (*Account, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	income, err := s.SumProcessed(ctx, accountID, CategoryIncome)
	if err != nil {
		return nil, fmt.Errorf("sum income for %s: %w", accountID, err)
	}
	expense, err := s.SumProcessed(ctx, accountID, CategoryExpense)
	if err != nil {
		return nil, fmt.Errorf("sum expense for %s: %w", accountID, err)
	}

	derived := income.Sub(expense)
	account.CurrentBalance = derived
	account.AvailableBalance = derived
	account.UpdatedAt = time.Now().UTC()

	if err := s.SaveAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("save account %s: %w", accountID, err)
	}
	return account, nil
}

// Summary assembles the balance read model for an account.
func (e *BalanceEngine) Summary(ctx context.Context, s Store, accountID AccountID) (*BalanceSummary, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	pending, err := s.CountByStatus(ctx, accountID, StatusPending)
	if err != nil {
		return nil, err
	}
	last, err := s.LastTransactionDate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &BalanceSummary{
		AccountID:        account.ID,
		AccountNumber:    account.AccountNumber,
		Name:             account.Name,
		CurrentBalance:   account.CurrentBalance,
		AvailableBalance: account.AvailableBalance,
		PendingCount:     pending,
		LastTransaction:  last,
	}, nil
}
