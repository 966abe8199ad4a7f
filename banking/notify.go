/*
notify.go - Due-date reminder scheduling

PURPOSE:
  Translates a future transaction's notification config (lead days +
  recipients) into queued reminder jobs. Scheduling is cancel-and-
  replace, keyed by the future transaction id: rescheduling a due date
  drops every outstanding reminder before queueing the new set, so a
  moved due date never leaves a stale reminder behind.

  Reminders whose send date is already in the past are skipped, not
  sent late.

SEE ALSO:
  - jobs/queue.go: the queue and payload types
  - future.go:     calls Schedule/Cancel around lifecycle changes
*/
package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/ledger-engine/jobs"
	"github.com/warp/ledger-engine/ledger"
)

// reminderHourUTC is the time of day reminders fire.
const reminderHourUTC = 9

// NotificationScheduler turns future transactions into reminder jobs.
type NotificationScheduler struct {
	queue jobs.Queue
	log   zerolog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewNotificationScheduler(queue jobs.Queue, log zerolog.Logger) *NotificationScheduler {
	return &NotificationScheduler{
		queue: queue,
		log:   log,
		Now:   time.Now,
	}
}

// Schedule replaces the future transaction's reminders with a fresh
// set: one job per lead day whose send time is still in the future.
// Failures are logged, never propagated; a missed reminder must not
// fail the transaction operation that caused the reschedule.
func (n *NotificationScheduler) Schedule(ctx context.Context, ft *ledger.FutureTransaction) {
	if n == nil || n.queue == nil {
		return
	}

	if _, err := n.queue.CancelByKey(ctx, string(ft.ID)); err != nil {
		n.log.Warn().Err(err).Str("future_id", string(ft.ID)).Msg("reminder cancellation failed")
	}
	if len(ft.NotificationDays) == 0 || len(ft.NotificationUserIDs) == 0 {
		return
	}

	now := n.Now().UTC()
	scheduled := 0
	for _, lead := range ft.NotificationDays {
		if lead < 0 {
			continue
		}
		sendDate := ft.DueDate.AddDays(-lead)
		runAt := sendDate.Time.Add(reminderHourUTC * time.Hour)
		if !runAt.After(now) {
			continue
		}

		payload := jobs.NotificationPayload{
			UserIDs:       ft.NotificationUserIDs,
			Subject:       fmt.Sprintf("Upcoming transaction due %s", ft.DueDate),
			Message:       reminderMessage(ft, lead),
			TransactionID: string(ft.ID),
		}
		if _, err := n.queue.Enqueue(ctx, jobs.TypeDueReminder, string(ft.ID), payload, runAt); err != nil {
			n.log.Warn().Err(err).
				Str("future_id", string(ft.ID)).
				Int("lead_days", lead).
				Msg("reminder enqueue failed")
			continue
		}
		scheduled++
	}

	if scheduled > 0 {
		n.log.Debug().
			Str("future_id", string(ft.ID)).
			Int("reminders", scheduled).
			Msg("reminders scheduled")
	}
}

// Cancel drops every outstanding reminder for the future transaction.
func (n *NotificationScheduler) Cancel(ctx context.Context, id ledger.TransactionID) {
	if n == nil || n.queue == nil {
		return
	}
	if _, err := n.queue.CancelByKey(ctx, string(id)); err != nil {
		n.log.Warn().Err(err).Str("future_id", string(id)).Msg("reminder cancellation failed")
	}
}

func reminderMessage(ft *ledger.FutureTransaction, lead int) string {
	switch lead {
	case 0:
		return fmt.Sprintf("%s of %s is due today (%s)", ft.Category, ft.Amount, ft.DueDate)
	case 1:
		return fmt.Sprintf("%s of %s is due tomorrow (%s)", ft.Category, ft.Amount, ft.DueDate)
	default:
		return fmt.Sprintf("%s of %s is due in %d days (%s)", ft.Category, ft.Amount, lead, ft.DueDate)
	}
}
