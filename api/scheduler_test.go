package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/events"
	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

var dec = ledger.MustDecimal

type env struct {
	store     *store.TxMemory
	emitter   *events.MemoryEmitter
	manager   *banking.TransactionManager
	scheduler *banking.FutureScheduler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.NewTxMemory()
	emitter := events.NewMemoryEmitter()
	log := zerolog.Nop()
	notify := banking.NewNotificationScheduler(jobs.NewMemoryQueue(), log)
	return &env{
		store:     s,
		emitter:   emitter,
		manager:   banking.NewTransactionManager(s, emitter, banking.ManagerConfig{}, log),
		scheduler: banking.NewFutureScheduler(s, emitter, notify, log),
	}
}

func (e *env) openAccount(t *testing.T, balance string) ledger.AccountID {
	t.Helper()
	account, err := e.manager.CreateAccount(context.Background(), banking.CreateAccountInput{
		AccountNumber:  "CHK-001",
		Name:           "Operating",
		OpeningBalance: dec(balance),
	})
	require.NoError(t, err)
	return account.ID
}

func (e *env) schedule(t *testing.T, id ledger.AccountID, amount string, c ledger.TransactionCategory, due ledger.Date) *ledger.FutureTransaction {
	t.Helper()
	ft, err := e.scheduler.Create(context.Background(), banking.CreateFutureInput{
		AccountID:   id,
		Amount:      dec(amount),
		Category:    c,
		DueDate:     due,
		TriggerType: ledger.TriggerAutomatic,
		CreatedBy:   "alice",
	})
	require.NoError(t, err)
	return ft
}

func newDriver(e *env, clock time.Time) *api.ScanDriver {
	driver := api.NewScanDriver(e.scheduler, api.DefaultScanConfig(), zerolog.Nop())
	driver.Now = func() time.Time { return clock }
	return driver
}

// =============================================================================
// SCAN PASSES
// =============================================================================

func TestScanTriggersDueRows(t *testing.T) {
	// GIVEN: a row due tomorrow, scan clock set to noon on the due date
	e := newEnv(t)
	id := e.openAccount(t, "1000.00")
	tomorrow := ledger.Today().AddDays(1)
	ft := e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)

	driver := newDriver(e, tomorrow.Time.Add(12*time.Hour))

	// WHEN: one scan pass runs
	report := driver.RunNow()

	// THEN: the row triggered, balance moved, system actor recorded
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 0, report.Failed)

	got, err := e.scheduler.Get(context.Background(), ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.FutureProcessed, got.Status)
	assert.Equal(t, ledger.SystemActor, got.TriggeredBy)

	account, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("900.00")))
}

func TestScanSkipsNotYetDueRows(t *testing.T) {
	e := newEnv(t)
	id := e.openAccount(t, "1000.00")
	e.schedule(t, id, "100.00", ledger.CategoryExpense, ledger.Today().AddDays(5))

	driver := newDriver(e, time.Now())
	report := driver.RunNow()

	assert.Equal(t, 0, report.Triggered)
	assert.Equal(t, 0, report.Expired)
}

func TestScanIsIdempotentAcrossPasses(t *testing.T) {
	e := newEnv(t)
	id := e.openAccount(t, "1000.00")
	tomorrow := ledger.Today().AddDays(1)
	e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)

	driver := newDriver(e, tomorrow.Time.Add(time.Hour))

	first := driver.RunNow()
	second := driver.RunNow()

	assert.Equal(t, 1, first.Triggered)
	assert.Equal(t, 0, second.Triggered)

	account, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("900.00")))
}

func TestScanContinuesPastFailingRow(t *testing.T) {
	// GIVEN: two due expenses; the account can only fund one of them
	e := newEnv(t)
	id := e.openAccount(t, "150.00")
	tomorrow := ledger.Today().AddDays(1)
	e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)
	e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)

	driver := newDriver(e, tomorrow.Time.Add(time.Hour))
	report := driver.RunNow()

	// THEN: one triggered, one failed, and the pass completed
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, report.Failed)

	account, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("50.00")))
}

func TestScanExpiresRowsPastGrace(t *testing.T) {
	// GIVEN: a row due tomorrow and a clock far past the grace window
	e := newEnv(t)
	id := e.openAccount(t, "1000.00")
	tomorrow := ledger.Today().AddDays(1)
	ft := e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)

	cfg := api.DefaultScanConfig()
	driver := api.NewScanDriver(e.scheduler, cfg, zerolog.Nop())
	driver.Now = func() time.Time {
		return tomorrow.AddDays(cfg.ExpiryGraceDays + 1).Time.Add(time.Hour)
	}

	// WHEN: a scan pass runs
	report := driver.RunNow()

	// THEN: the row expired instead of triggering, balance untouched
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Triggered)

	got, err := e.scheduler.Get(context.Background(), ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.FutureExpired, got.Status)

	account, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("1000.00")))
}

func TestScanWithinGraceStillTriggers(t *testing.T) {
	// One day past due is inside the default grace window.
	e := newEnv(t)
	id := e.openAccount(t, "1000.00")
	tomorrow := ledger.Today().AddDays(1)
	e.schedule(t, id, "100.00", ledger.CategoryExpense, tomorrow)

	driver := newDriver(e, tomorrow.AddDays(1).Time.Add(time.Hour))
	report := driver.RunNow()

	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, 1, report.Triggered)
}

func TestStartStopLifecycle(t *testing.T) {
	e := newEnv(t)
	cfg := api.DefaultScanConfig()
	cfg.ScanInterval = 50 * time.Millisecond
	driver := api.NewScanDriver(e.scheduler, cfg, zerolog.Nop())

	driver.Start()
	time.Sleep(75 * time.Millisecond)
	driver.Stop()
}

func TestDisabledDriverDoesNotStart(t *testing.T) {
	e := newEnv(t)
	cfg := api.DefaultScanConfig()
	cfg.Enabled = false
	driver := api.NewScanDriver(e.scheduler, cfg, zerolog.Nop())

	driver.Start()
	driver.Stop()
}
