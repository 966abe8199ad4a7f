// Package store provides an in-memory ledger.Store implementation
// for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[ledger.AccountID]ledger.Account
	txns     map[ledger.TransactionID]ledger.Transaction
	futures  map[ledger.TransactionID]ledger.FutureTransaction
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.AccountID]ledger.Account),
		txns:     make(map[ledger.TransactionID]ledger.Transaction),
		futures:  make(map[ledger.TransactionID]ledger.FutureTransaction),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAccounts(_ context.Context, activeOnly bool) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Account
	for _, a := range m.accounts {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) SaveTransaction(_ context.Context, t ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = t
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Transaction
	for _, t := range m.txns {
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	// Newest first, matching the SQL stores.
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) SumProcessed(_ context.Context, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := decimal.Zero
	for _, t := range m.txns {
		if t.AccountID == id && t.Category == c && t.Status == ledger.StatusProcessed {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) CountByStatus(_ context.Context, id ledger.AccountID, s ledger.TransactionStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.txns {
		if t.AccountID == id && t.Status == s {
			n++
		}
	}
	return n, nil
}

func (m *Memory) LastTransactionDate(_ context.Context, id ledger.AccountID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *time.Time
	for _, t := range m.txns {
		if t.AccountID != id {
			continue
		}
		d := t.TransactionDate
		if last == nil || d.After(*last) {
			last = &d
		}
	}
	return last, nil
}

// =============================================================================
// FUTURE TRANSACTIONS
// =============================================================================

func (m *Memory) SaveFutureTransaction(_ context.Context, ft ledger.FutureTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.futures[ft.ID] = ft
	return nil
}

func (m *Memory) GetFutureTransaction(_ context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft, ok := m.futures[id]
	if !ok {
		return nil, nil
	}
	return &ft, nil
}

func (m *Memory) ListFutureTransactions(_ context.Context, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.FutureTransaction
	for _, ft := range m.futures {
		if f.AccountID != "" && ft.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && ft.Status != f.Status {
			continue
		}
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) GetDue(_ context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.FutureTransaction
	for _, ft := range m.futures {
		if ft.Status != ledger.FutureScheduled || ft.TriggerType != ledger.TriggerAutomatic {
			continue
		}
		if ft.DueDate.After(target) {
			continue
		}
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ClaimFutureTransaction(_ context.Context, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ft, ok := m.futures[id]
	if !ok || ft.Status != from {
		return false, nil
	}
	ft.Status = to
	ft.UpdatedAt = time.Now().UTC()
	m.futures[id] = ft
	return true, nil
}

func (m *Memory) ExpireOverdue(_ context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []ledger.TransactionID
	now := time.Now().UTC()
	for id, ft := range m.futures {
		if ft.Status != ledger.FutureScheduled || ft.TriggerType != ledger.TriggerAutomatic {
			continue
		}
		if !ft.DueDate.Before(before) {
			continue
		}
		ft.Status = ledger.FutureExpired
		ft.ProcessedDate = &now
		ft.UpdatedAt = now
		m.futures[id] = ft
		expired = append(expired, id)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired, nil
}

func page[T any](in []T, offset, limit int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot + rollback on error.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the store, restoring the pre-call snapshot
// if fn fails. Units of work are serialized, mirroring a single-writer
// database transaction.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts map[ledger.AccountID]ledger.Account
	txns     map[ledger.TransactionID]ledger.Transaction
	futures  map[ledger.TransactionID]ledger.FutureTransaction
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		accounts: make(map[ledger.AccountID]ledger.Account, len(tm.accounts)),
		txns:     make(map[ledger.TransactionID]ledger.Transaction, len(tm.txns)),
		futures:  make(map[ledger.TransactionID]ledger.FutureTransaction, len(tm.futures)),
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	for k, v := range tm.txns {
		s.txns[k] = v
	}
	for k, v := range tm.futures {
		s.futures[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.accounts = s.accounts
	tm.txns = s.txns
	tm.futures = s.futures
}
