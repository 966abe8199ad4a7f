package banking_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/banking"
	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
)

func futureWithReminders(due ledger.Date, leadDays []int, users []string) *ledger.FutureTransaction {
	return &ledger.FutureTransaction{
		ID:                  ledger.NewFutureTransactionID(),
		AccountID:           "ACC-TEST",
		Amount:              dec("100.00"),
		Category:            ledger.CategoryExpense,
		DueDate:             due,
		TriggerType:         ledger.TriggerAutomatic,
		Status:              ledger.FutureScheduled,
		NotificationDays:    leadDays,
		NotificationUserIDs: users,
	}
}

func TestScheduleCreatesJobPerLeadDay(t *testing.T) {
	// GIVEN: due in 30 days, reminders at 7 and 1 days before
	queue := jobs.NewMemoryQueue()
	n := banking.NewNotificationScheduler(queue, zerolog.Nop())
	ft := futureWithReminders(ledger.Today().AddDays(30), []int{7, 1}, []string{"u1", "u2"})

	// WHEN: scheduling
	n.Schedule(context.Background(), ft)

	// THEN: two jobs, run times 23 and 29 days out
	pending := queue.Pending()
	require.Len(t, pending, 2)
	for _, job := range pending {
		assert.Equal(t, jobs.TypeDueReminder, job.Type)
		assert.Equal(t, string(ft.ID), job.Key)

		payload, ok := job.Payload.(jobs.NotificationPayload)
		require.True(t, ok)
		assert.Equal(t, []string{"u1", "u2"}, payload.UserIDs)
		assert.Equal(t, string(ft.ID), payload.TransactionID)
	}
	assert.True(t, pending[0].RunAt.Before(pending[1].RunAt))
}

func TestSchedulePastLeadDaysSkipped(t *testing.T) {
	// Due in 2 days: the 7-day reminder date has already passed.
	queue := jobs.NewMemoryQueue()
	n := banking.NewNotificationScheduler(queue, zerolog.Nop())
	ft := futureWithReminders(ledger.Today().AddDays(2), []int{7, 1}, []string{"u1"})

	n.Schedule(context.Background(), ft)

	pending := queue.Pending()
	require.Len(t, pending, 1)
}

func TestScheduleIsCancelAndReplace(t *testing.T) {
	// GIVEN: reminders scheduled for a 30-day due date
	queue := jobs.NewMemoryQueue()
	n := banking.NewNotificationScheduler(queue, zerolog.Nop())
	ft := futureWithReminders(ledger.Today().AddDays(30), []int{7, 1}, []string{"u1"})
	n.Schedule(context.Background(), ft)
	require.Len(t, queue.Pending(), 2)

	// WHEN: the due date moves and reminders are rescheduled
	ft.DueDate = ledger.Today().AddDays(60)
	n.Schedule(context.Background(), ft)

	// THEN: still exactly two jobs, aimed at the new date
	pending := queue.Pending()
	require.Len(t, pending, 2)
	wantEarliest := ft.DueDate.AddDays(-7).Time
	assert.True(t, pending[0].RunAt.After(wantEarliest.Add(-time.Hour)))
}

func TestCancelDropsAllReminders(t *testing.T) {
	queue := jobs.NewMemoryQueue()
	n := banking.NewNotificationScheduler(queue, zerolog.Nop())
	ft := futureWithReminders(ledger.Today().AddDays(30), []int{14, 7, 1}, []string{"u1"})
	n.Schedule(context.Background(), ft)
	require.Len(t, queue.Pending(), 3)

	n.Cancel(context.Background(), ft.ID)
	assert.Empty(t, queue.Pending())
}

func TestScheduleWithoutRecipientsIsNoOp(t *testing.T) {
	queue := jobs.NewMemoryQueue()
	n := banking.NewNotificationScheduler(queue, zerolog.Nop())
	ft := futureWithReminders(ledger.Today().AddDays(30), []int{7}, nil)

	n.Schedule(context.Background(), ft)
	assert.Empty(t, queue.Pending())
}
