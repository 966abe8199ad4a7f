/*
future.go - Scheduled future transactions

PURPOSE:
  A future transaction is a promise: on its due date it becomes a real
  ledger entry. This file owns the whole lifecycle:

    scheduled --Trigger--> processed   (creates exactly one Transaction)
    scheduled --Scrap----> scrapped    (never touches the ledger)
    scheduled --expiry---> expired     (grace period passed, automatic only)

  All three terminal states are final. Trigger on an already-terminal
  row is a success no-op returning the stored record, so retried scans
  and double-clicked buttons are harmless.

EXACTLY-ONCE TRIGGER:
  The trigger claims the row with a status-guarded update inside the
  same store transaction that posts the balance. Two concurrent
  triggers resolve to one winner; the loser re-reads and reports the
  winner's outcome.

SEE ALSO:
  - lifecycle.go: the immediate-transaction side
  - notify.go:    reminder scheduling for due dates
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
// FUTURE SCHEDULER
// =============================================================================

// FutureScheduler owns scheduled future transactions.
type FutureScheduler struct {
	store    ledger.TxStore
	balances *ledger.BalanceEngine
	emitter  events.Emitter
	notify   *NotificationScheduler
	log      zerolog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewFutureScheduler(store ledger.TxStore, emitter events.Emitter, notify *NotificationScheduler, log zerolog.Logger) *FutureScheduler {
	return &FutureScheduler{
		store:    store,
		balances: &ledger.BalanceEngine{},
		emitter:  emitter,
		notify:   notify,
		log:      log,
		Now:      time.Now,
	}
}

// CreateFutureInput carries the fields for a new future transaction.
type CreateFutureInput struct {
	AccountID       ledger.AccountID
	Amount          decimal.Decimal
	Category        ledger.TransactionCategory
	Description     string
	ReferenceNumber string
	Notes           string
	DueDate         ledger.Date
	TriggerType     ledger.TriggerType
	CreatedBy       ledger.ActorID

	NotificationDays    []int
	NotificationUserIDs []string
}

// Create schedules a future transaction. The due date must be strictly
// after today; no balance is touched until the trigger fires.
func (f *FutureScheduler) Create(ctx context.Context, in CreateFutureInput) (*ledger.FutureTransaction, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("category %q: %w", in.Category, ledger.ErrInvalidCategory)
	}
	if !ledger.ValidAmount(in.Amount) {
		return nil, ledger.ErrInvalidAmount
	}
	today := ledger.DateOf(f.Now())
	if !in.DueDate.After(today) {
		return nil, fmt.Errorf("due %s, today %s: %w", in.DueDate, today, ledger.ErrInvalidDueDate)
	}
	if in.TriggerType == "" {
		in.TriggerType = ledger.TriggerAutomatic
	}

	account, err := f.store.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", in.AccountID, ledger.ErrNotFound)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("account %s: %w", in.AccountID, ledger.ErrAccountInactive)
	}

	now := f.Now().UTC()
	ft := ledger.FutureTransaction{
		ID:                  ledger.NewFutureTransactionID(),
		AccountID:           in.AccountID,
		Amount:              in.Amount,
		Category:            in.Category,
		Description:         in.Description,
		ReferenceNumber:     in.ReferenceNumber,
		Notes:               in.Notes,
		DueDate:             in.DueDate,
		TriggerType:         in.TriggerType,
		Status:              ledger.FutureScheduled,
		CreatedBy:           in.CreatedBy,
		NotificationDays:    in.NotificationDays,
		NotificationUserIDs: in.NotificationUserIDs,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := f.store.SaveFutureTransaction(ctx, ft); err != nil {
		return nil, err
	}

	f.notify.Schedule(ctx, &ft)
	f.emit(ctx, events.FutureTransactionCreated, futureData(&ft))
	f.log.Info().
		Str("future_id", string(ft.ID)).
		Str("due_date", ft.DueDate.String()).
		Str("trigger_type", string(ft.TriggerType)).
		Msg("future transaction scheduled")
	return &ft, nil
}

// UpdateFutureInput carries the mutable fields of a scheduled future
// transaction. Nil pointers leave the field unchanged.
type UpdateFutureInput struct {
	Amount      *decimal.Decimal
	Description *string
	Notes       *string
	DueDate     *ledger.Date

	NotificationDays    []int
	NotificationUserIDs []string
}

// Update modifies a scheduled future transaction and reschedules its
// reminders. Anything past scheduled is immutable.
func (f *FutureScheduler) Update(ctx context.Context, id ledger.TransactionID, in UpdateFutureInput) (*ledger.FutureTransaction, error) {
	var ft *ledger.FutureTransaction
	err := f.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		ft, err = s.GetFutureTransaction(ctx, id)
		if err != nil {
			return err
		}
		if ft == nil {
			return fmt.Errorf("future transaction %s: %w", id, ledger.ErrNotFound)
		}
		if ft.Status != ledger.FutureScheduled {
			return fmt.Errorf("future transaction %s is %s: %w", id, ft.Status, ledger.ErrAlreadyTerminal)
		}

		if in.Amount != nil {
			if !ledger.ValidAmount(*in.Amount) {
				return ledger.ErrInvalidAmount
			}
			ft.Amount = *in.Amount
		}
		if in.Description != nil {
			ft.Description = *in.Description
		}
		if in.Notes != nil {
			ft.Notes = *in.Notes
		}
		if in.DueDate != nil {
			today := ledger.DateOf(f.Now())
			if !in.DueDate.After(today) {
				return fmt.Errorf("due %s, today %s: %w", in.DueDate, today, ledger.ErrInvalidDueDate)
			}
			ft.DueDate = *in.DueDate
		}
		if in.NotificationDays != nil {
			ft.NotificationDays = in.NotificationDays
		}
		if in.NotificationUserIDs != nil {
			ft.NotificationUserIDs = in.NotificationUserIDs
		}

		ft.UpdatedAt = f.Now().UTC()
		return s.SaveFutureTransaction(ctx, *ft)
	})
	if err != nil {
		return nil, err
	}

	f.notify.Schedule(ctx, ft)
	f.emit(ctx, events.FutureTransactionUpdated, futureData(ft))
	return ft, nil
}

// TriggerResult reports what a trigger did.
type TriggerResult struct {
	Future *ledger.FutureTransaction
	// Transaction is the ledger entry created by this trigger. Nil when
	// the row was already terminal and the call was a no-op.
	Transaction *ledger.Transaction
	// AlreadyDone is true when the row had already reached a terminal
	// state before this call.
	AlreadyDone bool
}

// Trigger converts a scheduled future transaction into a real ledger
// entry, exactly once. Calling it on an already-terminal row is a
// success no-op returning the stored record.
//
// The claim, the Transaction insert, the balance posting and the status
// flip share one store transaction: an insufficient-funds expense rolls
// everything back and the row stays scheduled for a later retry.
func (f *FutureScheduler) Trigger(ctx context.Context, id ledger.TransactionID, actor ledger.ActorID) (*TriggerResult, error) {
	var result TriggerResult
	err := f.store.WithTx(ctx, func(s ledger.Store) error {
		ft, err := s.GetFutureTransaction(ctx, id)
		if err != nil {
			return err
		}
		if ft == nil {
			return fmt.Errorf("future transaction %s: %w", id, ledger.ErrNotFound)
		}
		if ft.Status.Terminal() {
			result.Future = ft
			result.AlreadyDone = true
			return nil
		}

		claimed, err := s.ClaimFutureTransaction(ctx, id, ledger.FutureScheduled, ledger.FutureTriggered)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost the race. Re-read: if the winner finished, report
			// its outcome; otherwise it is mid-flight.
			ft, err = s.GetFutureTransaction(ctx, id)
			if err != nil {
				return err
			}
			if ft != nil && ft.Status.Terminal() {
				result.Future = ft
				result.AlreadyDone = true
				return nil
			}
			return fmt.Errorf("future transaction %s: %w", id, ledger.ErrConcurrentModification)
		}

		now := f.Now().UTC()
		txn := ledger.Transaction{
			ID:              ledger.NewTransactionID(),
			AccountID:       ft.AccountID,
			Amount:          ft.Amount,
			Category:        ft.Category,
			Status:          ledger.StatusProcessed,
			Description:     ft.Description,
			ReferenceNumber: string(ft.ID),
			Notes:           ft.Notes,
			TransactionDate: now,
			ProcessedDate:   &now,
			CreatedBy:       actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if _, err := f.balances.Adjust(ctx, s, ft.AccountID, ft.Amount, ft.Category.IsCredit()); err != nil {
			return err
		}
		if err := s.SaveTransaction(ctx, txn); err != nil {
			return err
		}

		ft.Status = ledger.FutureProcessed
		ft.TriggeredDate = &now
		ft.ProcessedDate = &now
		ft.TriggeredBy = actor
		ft.UpdatedAt = now
		if err := s.SaveFutureTransaction(ctx, *ft); err != nil {
			return err
		}

		result.Future = ft
		result.Transaction = &txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyDone {
		f.notify.Cancel(ctx, id)
		f.emit(ctx, events.FutureTransactionTriggered, futureData(result.Future))
		f.emit(ctx, events.TransactionProcessed, transactionData(result.Transaction))
		f.log.Info().
			Str("future_id", string(id)).
			Str("transaction_id", string(result.Transaction.ID)).
			Str("triggered_by", string(actor)).
			Msg("future transaction triggered")
	}
	return &result, nil
}

// Scrap cancels a scheduled future transaction. The ledger and the
// account balance are never touched.
func (f *FutureScheduler) Scrap(ctx context.Context, id ledger.TransactionID, actor ledger.ActorID, reason string) (*ledger.FutureTransaction, error) {
	var ft *ledger.FutureTransaction
	err := f.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		ft, err = s.GetFutureTransaction(ctx, id)
		if err != nil {
			return err
		}
		if ft == nil {
			return fmt.Errorf("future transaction %s: %w", id, ledger.ErrNotFound)
		}
		if ft.Status.Terminal() {
			return fmt.Errorf("future transaction %s is %s: %w", id, ft.Status, ledger.ErrAlreadyTerminal)
		}

		claimed, err := s.ClaimFutureTransaction(ctx, id, ledger.FutureScheduled, ledger.FutureScrapped)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("future transaction %s: %w", id, ledger.ErrConcurrentModification)
		}

		now := f.Now().UTC()
		ft.Status = ledger.FutureScrapped
		ft.ScrappedBy = actor
		ft.ProcessedDate = &now
		if reason != "" {
			if ft.Notes != "" {
				ft.Notes += "; "
			}
			ft.Notes += "scrapped: " + reason
		}
		ft.UpdatedAt = now
		return s.SaveFutureTransaction(ctx, *ft)
	})
	if err != nil {
		return nil, err
	}

	f.notify.Cancel(ctx, id)
	f.emit(ctx, events.FutureTransactionScrapped, futureData(ft))
	f.log.Info().
		Str("future_id", string(id)).
		Str("scrapped_by", string(actor)).
		Msg("future transaction scrapped")
	return ft, nil
}

// Get returns a future transaction or ErrNotFound.
func (f *FutureScheduler) Get(ctx context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	ft, err := f.store.GetFutureTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if ft == nil {
		return nil, fmt.Errorf("future transaction %s: %w", id, ledger.ErrNotFound)
	}
	return ft, nil
}

// List returns future transactions matching the filter.
func (f *FutureScheduler) List(ctx context.Context, filter ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	return f.store.ListFutureTransactions(ctx, filter)
}

// GetDue returns scheduled automatic rows due on or before target.
func (f *FutureScheduler) GetDue(ctx context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	return f.store.GetDue(ctx, target)
}

// ExpireOverdue marks scheduled automatic rows whose due date passed
// the grace cutoff as expired. Expired rows never touch balances; each
// one gets an expiry event and its reminders cancelled.
func (f *FutureScheduler) ExpireOverdue(ctx context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	ids, err := f.store.ExpireOverdue(ctx, before)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		f.notify.Cancel(ctx, id)
		// Re-read the row so the event carries the account and amount,
		// not just the id the sweep returned.
		ft, err := f.store.GetFutureTransaction(ctx, id)
		if err != nil || ft == nil {
			f.log.Warn().Err(err).Str("future_id", string(id)).Msg("expired row re-read failed, event skipped")
			continue
		}
		data := futureData(ft)
		data["cutoff"] = before.String()
		f.emit(ctx, events.FutureTransactionExpired, data)
	}
	if len(ids) > 0 {
		f.log.Warn().Int("count", len(ids)).Str("cutoff", before.String()).Msg("future transactions expired")
	}
	return ids, nil
}

func (f *FutureScheduler) emit(ctx context.Context, eventType string, data map[string]any) {
	if f.emitter == nil {
		return
	}
	if err := f.emitter.Emit(ctx, events.New(eventType, data)); err != nil {
		f.log.Warn().Err(err).Str("event_type", eventType).Msg("event emission failed")
	}
}

func futureData(ft *ledger.FutureTransaction) map[string]any {
	return map[string]any{
		"future_id":  string(ft.ID),
		"account_id": string(ft.AccountID),
		"amount":     ft.Amount.String(),
		"category":   string(ft.Category),
		"status":     string(ft.Status),
		"due_date":   ft.DueDate.String(),
	}
}
