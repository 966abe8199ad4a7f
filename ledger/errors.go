/*
errors.go - Centralized error taxonomy for the ledger engine

PURPOSE:
  All error types in one place. Callers classify errors with errors.Is
  against the sentinels; structured types carry the context a caller or
  log line needs.

ERROR CATEGORIES:
  1. Lookup errors     - unknown account/transaction ids (no retry)
  2. Validation errors - bad amounts, past due dates (no retry)
  3. Business errors   - insufficient funds, terminal-state guards
  4. Storage errors    - I/O and transaction conflicts (retryable)

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) {
      // reject the request, balances are untouched
  }

SEE ALSO:
  - balance.go: returns InsufficientFundsError
  - banking: wraps these with operation context
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for unknown account or transaction ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCategory is returned for a category outside income and
	// expense.
	ErrInvalidCategory = errors.New("unknown category")

	// ErrInvalidDueDate is returned when a due date is not strictly in
	// the future at creation time.
	ErrInvalidDueDate = errors.New("due date must be in the future")

	// ErrInsufficientFunds is returned when a debit exceeds the
	// available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountInactive is returned when posting against a closed or
	// deactivated account.
	ErrAccountInactive = errors.New("account is not active")

	// ErrAlreadyProcessed is returned when modifying a transaction that
	// has already moved past the attempted transition.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrAlreadyTerminal is returned when mutating a future transaction
	// in a terminal state (processed, scrapped, expired).
	ErrAlreadyTerminal = errors.New("already in terminal state")

	// ErrConcurrentModification is returned when a status-guarded update
	// finds the row already claimed by another writer.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStorage wraps database-level failures.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports the shortfall of a rejected debit.
type InsufficientFundsError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %s, requested %s (short %s)",
		e.AccountID, e.Available, e.Requested, e.Requested.Sub(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall returns how much the request exceeded the available balance.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// StorageError wraps a database failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed if retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStorage)
}

// IsClientError reports whether the error is the caller's fault and
// should be surfaced without retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidDueDate) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrAlreadyTerminal)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
