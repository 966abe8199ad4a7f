/*
Package jobs provides deferred job scheduling for notifications.

PURPOSE:
  Future transactions carry reminder lead times (e.g. notify 7 and 1
  days before the due date). Each reminder becomes a job with an
  explicit run-at time. Jobs are plain typed payloads: the queue knows
  nothing about transactions, and the dispatcher knows nothing about
  scheduling.

KEY TYPES:
  Queue:      Enqueue(jobType, payload, runAt) + CancelByKey
  Job:        a pending unit of deferred work
  Dispatcher: delivers notification payloads over HTTP

CANCELLATION:
  Jobs carry a caller-supplied key (the future transaction id). When a
  future transaction is rescheduled or reaches a terminal state, all of
  its outstanding jobs are cancelled by key and, on reschedule,
  replaced.

SEE ALSO:
  - banking/notify.go: translates future transactions into jobs
*/
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// JOB TYPES
// =============================================================================

const (
	TypeDueReminder = "due_reminder"
)

// Job is a unit of deferred work.
type Job struct {
	ID      string
	Type    string
	Key     string
	Payload any
	RunAt   time.Time

	EnqueuedAt time.Time
}

// Queue schedules jobs for later execution.
type Queue interface {
	// Enqueue schedules a job. key groups jobs for cancellation.
	Enqueue(ctx context.Context, jobType, key string, payload any, runAt time.Time) (string, error)

	// CancelByKey removes all pending jobs with the given key and
	// returns how many it removed.
	CancelByKey(ctx context.Context, key string) (int, error)
}

// =============================================================================
// MEMORY QUEUE
// =============================================================================

// MemoryQueue holds jobs in memory. Drain-based: a runner (or a test)
// pulls due jobs with Due(). Single-process only.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType, key string, payload any, runAt time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	q.jobs[id] = Job{
		ID:         id,
		Type:       jobType,
		Key:        key,
		Payload:    payload,
		RunAt:      runAt,
		EnqueuedAt: time.Now().UTC(),
	}
	return id, nil
}

func (q *MemoryQueue) CancelByKey(_ context.Context, key string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, j := range q.jobs {
		if j.Key == key {
			delete(q.jobs, id)
			n++
		}
	}
	return n, nil
}

// Due removes and returns all jobs with RunAt <= now, ordered by RunAt.
func (q *MemoryQueue) Due(now time.Time) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Job
	for id, j := range q.jobs {
		if !j.RunAt.After(now) {
			due = append(due, j)
			delete(q.jobs, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	return due
}

// Pending returns a copy of all scheduled jobs, ordered by RunAt.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out
}
