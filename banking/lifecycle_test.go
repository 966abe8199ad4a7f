package banking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var dec = ledger.MustDecimal

type fixture struct {
	store     *store.TxMemory
	emitter   *events.MemoryEmitter
	queue     *jobs.MemoryQueue
	manager   *banking.TransactionManager
	scheduler *banking.FutureScheduler
}

func newFixture(t *testing.T, cfg banking.ManagerConfig) *fixture {
	t.Helper()
	s := store.NewTxMemory()
	emitter := events.NewMemoryEmitter()
	queue := jobs.NewMemoryQueue()
	log := zerolog.Nop()

	notify := banking.NewNotificationScheduler(queue, log)
	return &fixture{
		store:     s,
		emitter:   emitter,
		queue:     queue,
		manager:   banking.NewTransactionManager(s, emitter, cfg, log),
		scheduler: banking.NewFutureScheduler(s, emitter, notify, log),
	}
}

func (f *fixture) openAccount(t *testing.T, balance string) ledger.AccountID {
	t.Helper()
	account, err := f.manager.CreateAccount(context.Background(), banking.CreateAccountInput{
		AccountNumber:  "CHK-001",
		Name:           "Operating",
		BankName:       "First Bank",
		OpeningBalance: dec(balance),
	})
	require.NoError(t, err)
	return account.ID
}

func (f *fixture) balanceOf(t *testing.T, id ledger.AccountID) *ledger.Account {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestUpdateAccountFieldsAndDeactivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "500.00")

	name := "Payroll"
	inactive := false
	updated, err := f.manager.UpdateAccount(ctx, id, banking.UpdateAccountInput{
		Name:     &name,
		IsActive: &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "Payroll", updated.Name)
	assert.False(t, updated.IsActive)
	// Balances never move through UpdateAccount
	assert.True(t, updated.CurrentBalance.Equal(dec("500.00")))

	// Posting against the deactivated account fails
	_, err = f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("10.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	assert.True(t, errors.Is(err, ledger.ErrAccountInactive))
}

func TestUpdateAccountUnknown(t *testing.T) {
	f := newFixture(t, banking.ManagerConfig{})
	name := "x"
	_, err := f.manager.UpdateAccount(context.Background(), "ACC-MISSING", banking.UpdateAccountInput{Name: &name})
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreatePostsImmediatelyByDefault(t *testing.T) {
	// GIVEN: account with 1000
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	// WHEN: creating a 400 expense
	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("400.00"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	// THEN: processed, balance 600/600
	assert.Equal(t, ledger.StatusProcessed, txn.Status)
	require.NotNil(t, txn.ProcessedDate)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("600.00")))
	assert.True(t, account.AvailableBalance.Equal(dec("600.00")))

	assert.Len(t, f.emitter.OfType(events.TransactionCreated), 1)
	assert.Len(t, f.emitter.OfType(events.TransactionProcessed), 1)
}

func TestCreateExpenseInsufficientFundsWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	_, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("100.01"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	// Balance untouched, no transaction row, no events
	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("100.00")))

	txns, err := f.manager.List(ctx, ledger.TransactionFilter{AccountID: id})
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Empty(t, f.emitter.Events())
}

func TestCreateRejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	account := f.balanceOf(t, id)
	account.IsActive = false
	require.NoError(t, f.store.SaveAccount(ctx, *account))

	_, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("10.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	assert.True(t, errors.Is(err, ledger.ErrAccountInactive))
}

func TestCreateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	_, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("-5.00"),
		Category:  ledger.CategoryIncome,
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))

	_, err = f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("5.00"),
		Category:  "transfer",
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidCategory))
}

func TestCreatePendingWithVerifyGate(t *testing.T) {
	// GIVEN: verify-before-posting mode
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{VerifyBeforePosting: true})
	id := f.openAccount(t, "1000.00")

	// WHEN: creating a transaction
	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("400.00"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	// THEN: pending, balance untouched
	assert.Equal(t, ledger.StatusPending, txn.Status)
	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))
}

// =============================================================================
// VERIFY
// =============================================================================

func TestVerifyPostsPendingTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{VerifyBeforePosting: true})
	id := f.openAccount(t, "1000.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("400.00"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	verified, err := f.manager.Verify(ctx, txn.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusProcessed, verified.Status)
	assert.Equal(t, ledger.ActorID("bob"), verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedDate)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("600.00")))
}

func TestVerifyRejectsNonPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("100.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.manager.Verify(ctx, txn.ID, "bob")
	assert.True(t, errors.Is(err, ledger.ErrAlreadyProcessed))
}

// =============================================================================
// VOID
// =============================================================================

func TestVoidReversesProcessedExpense(t *testing.T) {
	// GIVEN: 1000 balance, 400 expense processed (600 left)
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "1000.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("400.00"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	require.True(t, f.balanceOf(t, id).CurrentBalance.Equal(dec("600.00")))

	// WHEN: voiding
	voided, err := f.manager.Void(ctx, txn.ID, "bob", "duplicate entry")
	require.NoError(t, err)

	// THEN: back to 1000/1000, row kept as voided with the actor recorded
	assert.Equal(t, ledger.StatusVoided, voided.Status)
	assert.Equal(t, ledger.ActorID("bob"), voided.VoidedBy)
	assert.Contains(t, voided.Notes, "duplicate entry")

	stored, err := f.manager.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActorID("bob"), stored.VoidedBy)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))
	assert.True(t, account.AvailableBalance.Equal(dec("1000.00")))

	assert.Len(t, f.emitter.OfType(events.TransactionVoided), 1)
}

func TestVoidReversesProcessedIncome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("50.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.manager.Void(ctx, txn.ID, "bob", "")
	require.NoError(t, err)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("100.00")))
}

func TestVoidTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "100.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("10.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	_, err = f.manager.Void(ctx, txn.ID, "bob", "")
	require.NoError(t, err)

	_, err = f.manager.Void(ctx, txn.ID, "bob", "")
	require.Error(t, err)

	// Balance reversed exactly once
	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("100.00")))
}

func TestVoidPendingSkipsBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{VerifyBeforePosting: true})
	id := f.openAccount(t, "100.00")

	txn, err := f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("10.00"),
		Category:  ledger.CategoryExpense,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	voided, err := f.manager.Void(ctx, txn.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVoided, voided.Status)

	account := f.balanceOf(t, id)
	assert.True(t, account.CurrentBalance.Equal(dec("100.00")))
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

func TestAdjustBalanceAndRecalculate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{})
	id := f.openAccount(t, "0")

	// Manual credit adjustment
	account, err := f.manager.AdjustBalance(ctx, id, dec("75.00"), true)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("75.00")))

	// Recalculate derives from processed history, wiping the manual drift
	_, err = f.manager.Create(ctx, banking.CreateTransactionInput{
		AccountID: id,
		Amount:    dec("30.00"),
		Category:  ledger.CategoryIncome,
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	account, err = f.manager.RecalculateBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("30.00")))
}

func TestBalanceSummaryCountsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, banking.ManagerConfig{VerifyBeforePosting: true})
	id := f.openAccount(t, "500.00")

	for i := 0; i < 3; i++ {
		_, err := f.manager.Create(ctx, banking.CreateTransactionInput{
			AccountID: id,
			Amount:    dec("10.00"),
			Category:  ledger.CategoryExpense,
			CreatedBy: "alice",
		})
		require.NoError(t, err)
	}

	summary, err := f.manager.BalanceSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PendingCount)
}
