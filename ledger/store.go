/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   account, transaction and future-transaction persistence
  TxStore: Store plus WithTx for atomic multi-write units of work

ATOMIC UNITS OF WORK:
  Every balance-affecting operation - "validate funds, post balance,
  change status, record outcome" - runs inside WithTx. Either all of
  {balance delta, Transaction status, FutureTransaction status} land,
  or none do.

STATUS-GUARDED CLAIMS:
  ClaimFutureTransaction performs the optimistic concurrency control for
  triggers: an UPDATE guarded by the expected current status, with a
  rows-affected check. Exactly one of two concurrent triggers wins the
  claim; the loser observes claimed=false and re-reads the row.

MISSING ROWS:
  Get* methods return (nil, nil) for unknown ids. Translating that into
  ErrNotFound is the service layer's job, where the operation context is
  known.

IMPLEMENTATIONS:
  - store/sqlite:   production single-node store (WAL mode)
  - store/postgres: production multi-node store (pgx)
  - ledger/store:   in-memory store for tests

SEE ALSO:
  - balance.go: posts through these interfaces
  - banking:    services composing units of work with WithTx
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// TransactionFilter narrows List queries. Zero values mean "no filter";
// Limit==0 means the store's default page size.
type TransactionFilter struct {
	AccountID AccountID
	Status    TransactionStatus
	Limit     int
	Offset    int
}

// FutureFilter narrows future-transaction List queries.
type FutureFilter struct {
	AccountID AccountID
	Status    FutureStatus
	Limit     int
	Offset    int
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence for accounts, transactions and future
// transactions. Transactions are never deleted: there is no Delete
// method, and implementations must not provide one.
type Store interface {
	// Accounts
	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error)

	// Transactions
	SaveTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// SumProcessed returns the sum of amounts of processed transactions
	// for the account and category. Used by reconciliation.
	SumProcessed(ctx context.Context, id AccountID, c TransactionCategory) (decimal.Decimal, error)

	// CountByStatus returns how many of the account's transactions are
	// in the given status.
	CountByStatus(ctx context.Context, id AccountID, s TransactionStatus) (int, error)

	// LastTransactionDate returns the most recent transaction date for
	// the account, or nil if it has none.
	LastTransactionDate(ctx context.Context, id AccountID) (*time.Time, error)

	// Future transactions
	SaveFutureTransaction(ctx context.Context, ft FutureTransaction) error
	GetFutureTransaction(ctx context.Context, id TransactionID) (*FutureTransaction, error)
	ListFutureTransactions(ctx context.Context, f FutureFilter) ([]FutureTransaction, error)

	// GetDue returns scheduled, automatic rows with due_date <= target,
	// ordered by due date. The scan driver's sole data source.
	GetDue(ctx context.Context, target Date) ([]FutureTransaction, error)

	// ClaimFutureTransaction atomically moves a future transaction from
	// one status to another. Returns claimed=false (and no error) when
	// the row is no longer in the expected status.
	ClaimFutureTransaction(ctx context.Context, id TransactionID, from, to FutureStatus) (bool, error)

	// ExpireOverdue marks scheduled automatic rows whose due date is
	// strictly before the cutoff as expired. Returns the ids it expired.
	// Never touches balances.
	ExpireOverdue(ctx context.Context, before Date) ([]TransactionID, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a storage transaction. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
