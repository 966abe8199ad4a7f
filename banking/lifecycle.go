/*
Package banking is the service layer of the ledger engine.

PURPOSE:
  Composes the ledger primitives (Balance Engine, stores, events) into
  the operations a banking backend exposes: create/verify/void
  transactions, manage accounts, schedule and trigger future
  transactions, and schedule due-date reminders.

UNITS OF WORK:
  Every balance-affecting operation runs inside TxStore.WithTx so the
  balance delta and the status change land together or not at all.
  Events are emitted after the unit of work commits and never fail the
  operation.

FILES:
  lifecycle.go: accounts and immediate transactions (this file)
  future.go:    scheduled future transactions
  notify.go:    due-date reminder scheduling

SEE ALSO:
  - ledger/balance.go: the posting rules this layer composes
*/
package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TRANSACTION MANAGER
// =============================================================================

// ManagerConfig controls lifecycle behavior.
type ManagerConfig struct {
	// VerifyBeforePosting holds new transactions in pending until a
	// verifier approves them. When false (the default), transactions
	// post to the balance at creation and land as processed.
	VerifyBeforePosting bool
}

// TransactionManager owns accounts and immediate transactions.
type TransactionManager struct {
	store    ledger.TxStore
	balances *ledger.BalanceEngine
	emitter  events.Emitter
	cfg      ManagerConfig
	log      zerolog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewTransactionManager(store ledger.TxStore, emitter events.Emitter, cfg ManagerConfig, log zerolog.Logger) *TransactionManager {
	return &TransactionManager{
		store:    store,
		balances: &ledger.BalanceEngine{},
		emitter:  emitter,
		cfg:      cfg,
		log:      log,
		Now:      time.Now,
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccountInput carries the fields for a new account.
type CreateAccountInput struct {
	AccountNumber  string
	Name           string
	BankName       string
	OpeningBalance decimal.Decimal
}

// CreateAccount opens a new active account with the given opening balance.
func (m *TransactionManager) CreateAccount(ctx context.Context, in CreateAccountInput) (*ledger.Account, error) {
	if in.OpeningBalance.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}

	now := m.Now().UTC()
	account := ledger.Account{
		ID:               ledger.NewAccountID(),
		AccountNumber:    in.AccountNumber,
		Name:             in.Name,
		BankName:         in.BankName,
		CurrentBalance:   in.OpeningBalance,
		AvailableBalance: in.OpeningBalance,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.store.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

// UpdateAccountInput carries the mutable account fields. Nil pointers
// leave the field unchanged. Balances are not here: they move only
// through posting, adjustment and recalculation.
type UpdateAccountInput struct {
	Name     *string
	BankName *string
	IsActive *bool
}

// UpdateAccount changes an account's descriptive fields or active flag.
func (m *TransactionManager) UpdateAccount(ctx context.Context, id ledger.AccountID, in UpdateAccountInput) (*ledger.Account, error) {
	var account *ledger.Account
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		account, err = s.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("account %s: %w", id, ledger.ErrNotFound)
		}

		if in.Name != nil {
			account.Name = *in.Name
		}
		if in.BankName != nil {
			account.BankName = *in.BankName
		}
		if in.IsActive != nil {
			account.IsActive = *in.IsActive
		}
		account.UpdatedAt = m.Now().UTC()
		return s.SaveAccount(ctx, *account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns an account or ErrNotFound.
func (m *TransactionManager) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	account, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", id, ledger.ErrNotFound)
	}
	return account, nil
}

// ListAccounts returns accounts, optionally active ones only.
func (m *TransactionManager) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	return m.store.ListAccounts(ctx, activeOnly)
}

// AdjustBalance applies a manual correction outside the transaction
// lifecycle. credit=true adds funds.
func (m *TransactionManager) AdjustBalance(ctx context.Context, id ledger.AccountID, amount decimal.Decimal, credit bool) (*ledger.Account, error) {
	var account *ledger.Account
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		account, err = m.balances.Adjust(ctx, s, id, amount, credit)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, events.BalanceAdjusted, map[string]any{
		"account_id":        string(account.ID),
		"amount":            amount.String(),
		"credit":            credit,
		"current_balance":   account.CurrentBalance.String(),
		"available_balance": account.AvailableBalance.String(),
	})
	return account, nil
}

// RecalculateBalance rebuilds the account balance from its processed
// transaction history.
func (m *TransactionManager) RecalculateBalance(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	var account *ledger.Account
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		account, err = m.balances.Recalculate(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, events.BalanceRecalculated, map[string]any{
		"account_id":      string(account.ID),
		"current_balance": account.CurrentBalance.String(),
	})
	return account, nil
}

// BalanceSummary returns the read model for an account's balance.
func (m *TransactionManager) BalanceSummary(ctx context.Context, id ledger.AccountID) (*ledger.BalanceSummary, error) {
	return m.balances.Summary(ctx, m.store, id)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransactionInput carries the fields for a new ledger entry.
type CreateTransactionInput struct {
	AccountID       ledger.AccountID
	Amount          decimal.Decimal
	Category        ledger.TransactionCategory
	Description     string
	ReferenceNumber string
	Notes           string
	TransactionDate time.Time
	CreatedBy       ledger.ActorID
}

// Create records a new transaction. By default it posts to the balance
// immediately and lands as processed; with VerifyBeforePosting it lands
// as pending and posts on Verify.
//
// An expense larger than the available balance is rejected with
// InsufficientFundsError and nothing is written.
func (m *TransactionManager) Create(ctx context.Context, in CreateTransactionInput) (*ledger.Transaction, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("category %q: %w", in.Category, ledger.ErrInvalidCategory)
	}
	if !ledger.ValidAmount(in.Amount) {
		return nil, ledger.ErrInvalidAmount
	}

	now := m.Now().UTC()
	txDate := in.TransactionDate
	if txDate.IsZero() {
		txDate = now
	}

	txn := ledger.Transaction{
		ID:              ledger.NewTransactionID(),
		AccountID:       in.AccountID,
		Amount:          in.Amount,
		Category:        in.Category,
		Status:          ledger.StatusPending,
		Description:     in.Description,
		ReferenceNumber: in.ReferenceNumber,
		Notes:           in.Notes,
		TransactionDate: txDate,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		account, err := s.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("account %s: %w", in.AccountID, ledger.ErrNotFound)
		}
		if !account.IsActive {
			return fmt.Errorf("account %s: %w", in.AccountID, ledger.ErrAccountInactive)
		}

		if !m.cfg.VerifyBeforePosting {
			if _, err := m.balances.Adjust(ctx, s, in.AccountID, in.Amount, in.Category.IsCredit()); err != nil {
				return err
			}
			txn.Status = ledger.StatusProcessed
			txn.ProcessedDate = &now
		}

		return s.SaveTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, events.TransactionCreated, transactionData(&txn))
	if txn.Status == ledger.StatusProcessed {
		m.emit(ctx, events.TransactionProcessed, transactionData(&txn))
	}

	m.log.Info().
		Str("transaction_id", string(txn.ID)).
		Str("account_id", string(txn.AccountID)).
		Str("amount", txn.Amount.String()).
		Str("category", string(txn.Category)).
		Str("status", string(txn.Status)).
		Msg("transaction created")
	return &txn, nil
}

// Verify approves a pending transaction: it posts to the balance and
// lands as processed, stamped with the verifying actor. Only pending
// transactions can be verified.
func (m *TransactionManager) Verify(ctx context.Context, id ledger.TransactionID, actor ledger.ActorID) (*ledger.Transaction, error) {
	var txn *ledger.Transaction
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		txn, err = s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
		}
		if txn.Status != ledger.StatusPending {
			return fmt.Errorf("transaction %s is %s: %w", id, txn.Status, ledger.ErrAlreadyProcessed)
		}

		if _, err := m.balances.Adjust(ctx, s, txn.AccountID, txn.Amount, txn.Category.IsCredit()); err != nil {
			return err
		}

		now := m.Now().UTC()
		txn.Status = ledger.StatusProcessed
		txn.VerifiedBy = actor
		txn.VerifiedDate = &now
		txn.ProcessedDate = &now
		txn.UpdatedAt = now
		return s.SaveTransaction(ctx, *txn)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, events.TransactionVerified, transactionData(txn))
	m.emit(ctx, events.TransactionProcessed, transactionData(txn))
	return txn, nil
}

// Void reverses a transaction. A processed transaction has its balance
// contribution undone by an opposite adjustment; a pending one simply
// flips status. Voided and failed transactions cannot be voided again.
func (m *TransactionManager) Void(ctx context.Context, id ledger.TransactionID, actor ledger.ActorID, reason string) (*ledger.Transaction, error) {
	var txn *ledger.Transaction
	err := m.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		txn, err = s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
		}
		if txn.Status.Terminal() {
			return fmt.Errorf("transaction %s is %s: %w", id, txn.Status, ledger.ErrAlreadyProcessed)
		}

		if txn.Status == ledger.StatusProcessed {
			// Reverse the posting: a voided income debits, a voided
			// expense credits.
			if _, err := m.balances.Adjust(ctx, s, txn.AccountID, txn.Amount, !txn.Category.IsCredit()); err != nil {
				return err
			}
		}

		now := m.Now().UTC()
		txn.Status = ledger.StatusVoided
		txn.VoidedBy = actor
		if reason != "" {
			if txn.Notes != "" {
				txn.Notes += "; "
			}
			txn.Notes += "voided: " + reason
		}
		txn.UpdatedAt = now
		return s.SaveTransaction(ctx, *txn)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, events.TransactionVoided, transactionData(txn))
	m.log.Info().
		Str("transaction_id", string(txn.ID)).
		Str("voided_by", string(actor)).
		Msg("transaction voided")
	return txn, nil
}

// Get returns a transaction or ErrNotFound.
func (m *TransactionManager) Get(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txn, err := m.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return txn, nil
}

// List returns transactions matching the filter, newest first.
func (m *TransactionManager) List(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return m.store.ListTransactions(ctx, f)
}

// =============================================================================
// HELPERS
// =============================================================================

// emit publishes an event, logging failures instead of propagating
// them. The operation that produced the event has already committed.
func (m *TransactionManager) emit(ctx context.Context, eventType string, data map[string]any) {
	if m.emitter == nil {
		return
	}
	if err := m.emitter.Emit(ctx, events.New(eventType, data)); err != nil {
		m.log.Warn().Err(err).Str("event_type", eventType).Msg("event emission failed")
	}
}

func transactionData(t *ledger.Transaction) map[string]any {
	return map[string]any{
		"transaction_id": string(t.ID),
		"account_id":     string(t.AccountID),
		"amount":         t.Amount.String(),
		"category":       string(t.Category),
		"status":         string(t.Status),
		"reference":      t.ReferenceNumber,
	}
}
