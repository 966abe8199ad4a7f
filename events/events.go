/*
Package events publishes lifecycle events to downstream consumers.

PURPOSE:
  Every transaction lifecycle change emits an event so reporting and
  audit systems can follow along. Emission is strictly best-effort:
  the ledger operation that produced the event has already committed,
  and a failing emitter must never roll it back or surface an error
  to the caller.

EVENT SHAPE:
  {event_id, event_type, timestamp, data}

  event_id is a fresh UUID per emission; data carries the entity
  snapshot as a flat map.

SEE ALSO:
  - banking: emits from the service layer after commit
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

const (
	TransactionCreated   = "transaction.created"
	TransactionVerified  = "transaction.verified"
	TransactionProcessed = "transaction.processed"
	TransactionVoided    = "transaction.voided"

	FutureTransactionCreated   = "future_transaction.created"
	FutureTransactionUpdated   = "future_transaction.updated"
	FutureTransactionTriggered = "future_transaction.triggered"
	FutureTransactionScrapped  = "future_transaction.scrapped"
	FutureTransactionExpired   = "future_transaction.expired"

	BalanceAdjusted     = "balance.adjusted"
	BalanceRecalculated = "balance.recalculated"
)

// =============================================================================
// EVENT
// =============================================================================

// Event is the envelope published for every lifecycle change.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// New builds an event envelope with a fresh id and current timestamp.
func New(eventType string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Emitter publishes events. Implementations must be safe for
// concurrent use and must not block the caller for long.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// MemoryEmitter records events in memory. Used in tests to assert on
// emission order and content.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (m *MemoryEmitter) Emit(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything emitted so far.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the emitted events with the given type.
func (m *MemoryEmitter) OfType(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to limit of the most recently emitted events,
// newest first. limit <= 0 returns everything.
func (m *MemoryEmitter) Recent(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(m.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.events[i])
	}
	return out
}

// Multi fans one emission out to every emitter. The first error wins
// but all emitters still run.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e Event) error {
	var first error
	for _, em := range m {
		if err := em.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogEmitter writes events to a structured log. The default production
// sink when no external consumer is configured.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (l *LogEmitter) Emit(_ context.Context, e Event) error {
	l.log.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Time("timestamp", e.Timestamp).
		Interface("data", e.Data).
		Msg("event emitted")
	return nil
}
