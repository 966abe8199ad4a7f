package banking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

func scheduleFuture(t *testing.T, f *fixture, id ledger.AccountID, amount string, c ledger.TransactionCategory, due ledger.Date) *ledger.FutureTransaction {
	t.Helper()
	ft, err := f.scheduler.Create(context.Background(), banking.CreateFutureInput{
		AccountID:   id,
		Amount:      dec(amount),
		Category:    c,
		Description: "rent",
		DueDate:     due,
		TriggerType: ledger.TriggerAutomatic,
		CreatedBy:   "alice",
	})
	require.NoError(t, err)
	return ft
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

func TestCreateFutureRequiresFutureDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	for _, due := range []ledger.Date{ledger.Today(), ledger.Today().AddDays(-1)} {
		_, err := f.scheduler.Create(ctx, banking.CreateFutureInput{
			AccountID: id,
			Amount:    dec("100.00"),
			Category:  ledger.CategoryExpense,
			DueDate:   due,
			CreatedBy: "alice",
		})
		assert.True(t, errors.Is(err, ledger.ErrInvalidDueDate), "due %s", due)
	}
}

func TestCreateFutureNeverTouchesBalance(t *testing.T) {
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	// An expense bigger than the balance is fine to schedule; funds are
	// checked at trigger time, not at scheduling time.
	ft := scheduleFuture(t, f, id, "5000.00", ledger.CategoryExpense, ledger.Today().AddDays(30))
	assert.Equal(t, ledger.FutureScheduled, ft.Status)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))
}

func TestUpdateScheduledFuture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(10))

	newAmount := dec("150.00")
	newDue := ledger.Today().AddDays(20)
	updated, err := f.scheduler.Update(ctx, ft.ID, banking.UpdateFutureInput{
		Amount:  &newAmount,
		DueDate: &newDue,
	})
	require.NoError(t, err)

	assert.True(t, updated.Amount.Equal(dec("150.00")))
	assert.True(t, updated.DueDate.Equal(newDue))
}

func TestUpdateRejectsTerminalFuture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(10))

	_, err := f.scheduler.Scrap(ctx, ft.ID, "bob", "")
	require.NoError(t, err)

	desc := "late edit"
	_, err = f.scheduler.Update(ctx, ft.ID, banking.UpdateFutureInput{Description: &desc})
	assert.True(t, errors.Is(err, ledger.ErrAlreadyTerminal))
}

// =============================================================================
// TRIGGER
// =============================================================================

func TestTriggerCreatesExactlyOneTransaction(t *testing.T) {
	// GIVEN: scheduled 100 expense, account at 1000
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(1))

	// WHEN: triggering
	result, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.NoError(t, err)

	// THEN: one processed transaction, future processed, balance moved once
	assert.False(t, result.AlreadyDone)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, ledger.StatusProcessed, result.Transaction.Status)
	assert.Equal(t, string(ft.ID), result.Transaction.ReferenceNumber)
	assert.Equal(t, ledger.FutureProcessed, result.Future.Status)
	assert.Equal(t, ledger.ActorID("bob"), result.Future.TriggeredBy)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("900.00")))

	assert.Len(t, f.emitter.OfType(events.FutureTransactionTriggered), 1)
}

func TestTriggerOnTerminalIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(1))

	first, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.NoError(t, err)
	require.False(t, first.AlreadyDone)

	// Second trigger: success no-op, nothing moves
	second, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.NoError(t, err)
	assert.True(t, second.AlreadyDone)
	assert.Nil(t, second.Transaction)
	assert.Equal(t, ledger.FutureProcessed, second.Future.Status)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("900.00")))

	txns, err := f.manager.List(ctx, ledger.TransactionFilter{AccountID: id})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestConcurrentTriggersPostOnce(t *testing.T) {
	// GIVEN: one scheduled future, many concurrent triggers
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(1))

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.scheduler.Trigger(ctx, ft.ID, "racer")
		}()
	}
	wg.Wait()

	// THEN: the balance moved exactly once and one transaction exists
	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("900.00")),
		"got %s", account.CurrentBalance)

	txns, err := f.manager.List(ctx, ledger.TransactionFilter{AccountID: id})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestTriggerInsufficientFundsLeavesScheduled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "50.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(1))

	_, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	// Whole unit of work rolled back: still scheduled, retryable later
	got, err := f.scheduler.Get(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.FutureScheduled, got.Status)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("50.00")))
}

func TestTriggerUnknownFuture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	_, err := f.scheduler.Trigger(ctx, "FTX-MISSING", "bob")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

// =============================================================================
// SCRAP
// =============================================================================

func TestScrapNeverMovesMoney(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryIncome, ledger.Today().AddDays(5))

	scrapped, err := f.scheduler.Scrap(ctx, ft.ID, "bob", "vendor cancelled")
	require.NoError(t, err)

	assert.Equal(t, ledger.FutureScrapped, scrapped.Status)
	assert.Equal(t, ledger.ActorID("bob"), scrapped.ScrappedBy)
	assert.Contains(t, scrapped.Notes, "vendor cancelled")

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))

	txns, err := f.manager.List(ctx, ledger.TransactionFilter{AccountID: id})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestScrapTerminalFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(1))

	_, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.NoError(t, err)

	_, err = f.scheduler.Scrap(ctx, ft.ID, "bob", "")
	assert.True(t, errors.Is(err, ledger.ErrAlreadyTerminal))
}

// =============================================================================
// DUE SCAN / EXPIRY
// =============================================================================

func TestGetDueFindsAutomaticRowsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	tomorrow := ledger.Today().AddDays(1)
	auto := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, tomorrow)

	manual, err := f.scheduler.Create(ctx, banking.CreateFutureInput{
		AccountID:   id,
		Amount:      dec("200.00"),
		Category:    ledger.CategoryExpense,
		DueDate:     tomorrow,
		TriggerType: ledger.TriggerManual,
		CreatedBy:   "alice",
	})
	require.NoError(t, err)

	// Today: nothing due yet
	due, err := f.scheduler.GetDue(ctx, ledger.Today())
	require.NoError(t, err)
	assert.Empty(t, due)

	// Tomorrow: only the automatic row
	due, err = f.scheduler.GetDue(ctx, tomorrow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, auto.ID, due[0].ID)
	assert.NotEqual(t, manual.ID, due[0].ID)
}

func TestExpireOverdueIsTerminalAndBalanceNeutral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")
	ft := scheduleFuture(t, f, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(2))

	// Before the cutoff passes the due date: nothing expires
	ids, err := f.scheduler.ExpireOverdue(ctx, ledger.Today())
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Cutoff beyond the due date: the row expires
	ids, err = f.scheduler.ExpireOverdue(ctx, ledger.Today().AddDays(5))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, ft.ID, ids[0])

	got, err := f.scheduler.Get(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.FutureExpired, got.Status)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))

	// Expired is terminal: trigger is a no-op
	result, err := f.scheduler.Trigger(ctx, ft.ID, "bob")
	require.NoError(t, err)
	assert.True(t, result.AlreadyDone)

	expired := f.emitter.OfType(events.FutureTransactionExpired)
	require.Len(t, expired, 1)
	// Downstream consumers dedup on transaction + account, so the event
	// carries the full row, not just the expired id
	assert.Equal(t, string(ft.ID), expired[0].Data["future_id"])
	assert.Equal(t, string(id), expired[0].Data["account_id"])
	assert.Equal(t, string(ledger.FutureExpired), expired[0].Data["status"])
}

func TestDueTomorrowTriggersOnScanDate(t *testing.T) {
	// GIVEN: automatic income due tomorrow
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "0")
	tomorrow := ledger.Today().AddDays(1)
	ft := scheduleFuture(t, f, id, "250.00", ledger.CategoryIncome, tomorrow)

	// WHEN: the scan for tomorrow runs and triggers the row
	due, err := f.scheduler.GetDue(ctx, tomorrow)
	require.NoError(t, err)
	require.Len(t, due, 1)

	_, err = f.scheduler.Trigger(ctx, due[0].ID, ledger.SystemActor)
	require.NoError(t, err)

	// THEN: income posted
	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("250.00")))

	got, err := f.scheduler.Get(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.FutureProcessed, got.Status)
	assert.Equal(t, ledger.SystemActor, got.TriggeredBy)
}

// Same race as above, but against the real SQL store: the
// status-guarded claim, not the in-memory lock, decides the winner.
func TestConcurrentTriggersPostOnceSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	log := zerolog.Nop()
	emitter := events.NewMemoryEmitter()
	manager := banking.NewTransactionManager(s, emitter, banking.ManagerConfig{}, log)
	scheduler := banking.NewFutureScheduler(s, emitter, banking.NewNotificationScheduler(jobs.NewMemoryQueue(), log), log)

	account, err := manager.CreateAccount(ctx, banking.CreateAccountInput{
		AccountNumber:  "CHK-001",
		Name:           "Operating",
		OpeningBalance: dec("1000.00"),
	})
	require.NoError(t, err)

	ft, err := scheduler.Create(ctx, banking.CreateFutureInput{
		AccountID:   account.ID,
		Amount:      dec("100.00"),
		Category:    ledger.CategoryExpense,
		DueDate:     ledger.Today().AddDays(1),
		TriggerType: ledger.TriggerAutomatic,
		CreatedBy:   "alice",
	})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Trigger(ctx, ft.ID, "racer")
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("900.00")), "got %s", got.CurrentBalance)

	txns, err := s.ListTransactions(ctx, ledger.TransactionFilter{AccountID: account.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

// Frozen-clock creation: a due date of "tomorrow relative to a fixed
// day" stays valid no matter when the test runs.
func TestCreateWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	frozen := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	f.scheduler.Now = func() time.Time { return frozen }

	ft, err := f.scheduler.Create(ctx, banking.CreateFutureInput{
		AccountID: id,
		Amount:    dec("10.00"),
		Category:  ledger.CategoryExpense,
		DueDate:   ledger.NewDate(2026, time.March, 2),
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", ft.DueDate.String())
}
