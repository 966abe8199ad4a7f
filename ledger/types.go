/*
Package ledger provides the core ledger-and-balance engine.

PURPOSE:
  This package contains the data model and algorithms that keep account
  balances correct over time: accounts with paired current/available
  balances, immutable processed transactions, scheduled future
  transactions, and the Balance Engine that is the only code allowed to
  move money.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: bank account with current_balance and available_balance
  - Transaction: an immediate ledger entry with a forward-only lifecycle
  - FutureTransaction: a scheduled obligation converted to a Transaction
    exactly once when triggered
  - Typed identifiers and status enums with terminal-state helpers

DESIGN PRINCIPLES:
  1. Precision: all amounts are decimal.Decimal, never floating point
  2. Single writer: balances change only through the Balance Engine
  3. Audit: processed transactions are never deleted, only voided
  4. Type safety: account, transaction and actor IDs do not mix

SEE ALSO:
  - balance.go: balance posting and reconciliation
  - store.go: persistence interfaces
  - errors.go: error taxonomy
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string
type ActorID string

// SystemActor is the actor recorded for operations driven by the
// automatic scan loop rather than a human caller.
const SystemActor ActorID = "system"

// NewTransactionID returns an externally stable, opaque transaction token.
func NewTransactionID() TransactionID {
	return TransactionID("TXN-" + randomToken())
}

// NewFutureTransactionID returns a token for a scheduled future transaction.
func NewFutureTransactionID() TransactionID {
	return TransactionID("FTX-" + randomToken())
}

// NewAccountID returns a token for a new account.
func NewAccountID() AccountID {
	return AccountID("ACC-" + randomToken())
}

func randomToken() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// =============================================================================
// MONEY
// =============================================================================

// MustDecimal parses a decimal string, returning zero on malformed input.
// Intended for literals in tests and fixtures.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ValidAmount reports whether d is a legal transaction amount (> 0).
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive()
}

// =============================================================================
// ENUMS
// =============================================================================

type TransactionCategory string

const (
	CategoryIncome  TransactionCategory = "income"
	CategoryExpense TransactionCategory = "expense"
)

func (c TransactionCategory) Valid() bool {
	return c == CategoryIncome || c == CategoryExpense
}

// IsCredit reports whether posting this category increases the balance.
func (c TransactionCategory) IsCredit() bool {
	return c == CategoryIncome
}

// Signed returns amount with the sign of this category's balance effect.
func (c TransactionCategory) Signed(amount decimal.Decimal) decimal.Decimal {
	if c.IsCredit() {
		return amount
	}
	return amount.Neg()
}

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	// StatusVerified is accepted on read for rows written by earlier
	// schema revisions; new writes never rest here. Verification and
	// posting land in one unit of work, so a verified transaction goes
	// straight to processed with verified_by/verified_date stamped.
	StatusVerified  TransactionStatus = "verified"
	StatusProcessed TransactionStatus = "processed"
	StatusVoided    TransactionStatus = "voided"
	StatusFailed    TransactionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
// Processed transactions are NOT terminal here: they can still be voided.
func (s TransactionStatus) Terminal() bool {
	return s == StatusVoided || s == StatusFailed
}

type TriggerType string

const (
	TriggerAutomatic TriggerType = "automatic"
	TriggerManual    TriggerType = "manual"
)

type FutureStatus string

const (
	FutureScheduled FutureStatus = "scheduled"
	FutureTriggered FutureStatus = "triggered"
	FutureProcessed FutureStatus = "processed"
	FutureScrapped  FutureStatus = "scrapped"
	FutureExpired   FutureStatus = "expired"
)

// Terminal reports whether a future transaction can never change again.
// Triggered is transient: it exists only inside the trigger unit of work.
func (s FutureStatus) Terminal() bool {
	return s == FutureProcessed || s == FutureScrapped || s == FutureExpired
}

// =============================================================================
// DATE - calendar day, UTC, no time-of-day component
// =============================================================================

// Date is a calendar day. Due dates and scan targets are dates, not
// instants: a future transaction due "2026-03-01" is due the whole day.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// DaysUntil returns the whole days from d to other (negative if past).
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// ACCOUNT
// =============================================================================

// Account holds the two balance fields the engine protects.
//
// INVARIANT: AvailableBalance <= CurrentBalance at all times. Both fields
// are written only by the Balance Engine, inside the same store transaction
// as the status change that caused the movement.
type Account struct {
	ID            AccountID
	AccountNumber string
	Name          string
	BankName      string

	CurrentBalance   decimal.Decimal
	AvailableBalance decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceSummary is the read model returned by balance queries.
type BalanceSummary struct {
	AccountID        AccountID
	AccountNumber    string
	Name             string
	CurrentBalance   decimal.Decimal
	AvailableBalance decimal.Decimal
	PendingCount     int
	LastTransaction  *time.Time
}

// =============================================================================
// TRANSACTION - immediate ledger entry
// =============================================================================

// Transaction is an immediate ledger entry.
//
// INVARIANTS:
//   - Amount > 0; the sign of the balance effect comes from Category.
//   - A processed transaction has contributed exactly once to its
//     account's balance.
//   - A voided transaction that was processed has had that contribution
//     reversed exactly once.
//   - Rows are never deleted; voiding is the only correction mechanism.
type Transaction struct {
	ID        TransactionID
	AccountID AccountID

	Amount   decimal.Decimal
	Category TransactionCategory
	Status   TransactionStatus

	Description     string
	ReferenceNumber string
	Notes           string

	TransactionDate time.Time
	ProcessedDate   *time.Time
	VerifiedDate    *time.Time

	CreatedBy  ActorID
	VerifiedBy ActorID
	VoidedBy   ActorID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// FUTURE TRANSACTION - scheduled obligation
// =============================================================================

// FutureTransaction is a scheduled obligation. It reaches exactly one
// terminal state; processing it creates exactly one real Transaction.
type FutureTransaction struct {
	ID        TransactionID
	AccountID AccountID

	Amount   decimal.Decimal
	Category TransactionCategory

	Description     string
	ReferenceNumber string
	Notes           string

	DueDate     Date
	TriggerType TriggerType
	Status      FutureStatus

	TriggeredDate *time.Time
	ProcessedDate *time.Time

	CreatedBy   ActorID
	TriggeredBy ActorID
	ScrappedBy  ActorID

	// Reminder lead times in days before DueDate, and who to notify.
	NotificationDays    []int
	NotificationUserIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}
