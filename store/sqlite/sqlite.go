/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. Suitable for
  single-node deployments; the PostgreSQL store in store/postgres covers
  multi-node setups with the same interface.

KEY TABLES:
  accounts:            Bank accounts with current/available balances
  transactions:        Ledger entries (never deleted, only voided)
  future_transactions: Scheduled obligations awaiting trigger

INDEXES:
  - idx_transactions_account_status: list and pending-count queries
  - idx_transactions_processed: balance reconciliation (hot path)
  - idx_future_due_scan: the scan driver's due-row query

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single-writer
  model. Trigger claims use status-guarded UPDATEs with a rows-affected
  check, so two concurrent triggers resolve to exactly one winner.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/postgres: PostgreSQL implementation
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
)

const defaultPageSize = 100

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		account_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		bank_name TEXT,
		current_balance TEXT NOT NULL,
		available_balance TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Ledger entries. No DELETE statement exists anywhere in this package:
	-- corrections go through voiding only.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		reference_number TEXT,
		notes TEXT,
		transaction_date TEXT NOT NULL,
		processed_date TEXT,
		verified_date TEXT,
		created_by TEXT NOT NULL,
		verified_by TEXT,
		voided_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_status
		ON transactions(account_id, status);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(account_id, transaction_date DESC);

	-- Reconciliation sums processed rows per category (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_processed
		ON transactions(account_id, category) WHERE status = 'processed';

	CREATE TABLE IF NOT EXISTS future_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		reference_number TEXT,
		notes TEXT,
		due_date TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		status TEXT NOT NULL,
		triggered_date TEXT,
		processed_date TEXT,
		created_by TEXT NOT NULL,
		triggered_by TEXT,
		scrapped_by TEXT,
		notification_days TEXT,
		notification_user_ids TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- The scan driver's query: scheduled automatic rows by due date
	CREATE INDEX IF NOT EXISTS idx_future_due_scan
		ON future_transactions(due_date) WHERE status = 'scheduled' AND trigger_type = 'automatic';
	CREATE INDEX IF NOT EXISTS idx_future_account_status
		ON future_transactions(account_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, db execer, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, account_number, name, bank_name, current_balance, available_balance, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_number = excluded.account_number,
			name = excluded.name,
			bank_name = excluded.bank_name,
			current_balance = excluded.current_balance,
			available_balance = excluded.available_balance,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		a.ID, a.AccountNumber, a.Name, a.BankName,
		a.CurrentBalance.String(), a.AvailableBalance.String(),
		a.IsActive,
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StorageError{Op: "save account", Err: err}
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, db execer, id ledger.AccountID) (*ledger.Account, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, account_number, name, bank_name, current_balance, available_balance,
		       is_active, created_at, updated_at
		FROM accounts WHERE id = ?`, id)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get account", Err: err}
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_number, name, bank_name, current_balance, available_balance,
		       is_active, created_at, updated_at
		FROM accounts`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY account_number ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list accounts", Err: err}
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan account", Err: err}
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		a                ledger.Account
		current, avail   string
		created, updated string
	)
	err := row.Scan(&a.ID, &a.AccountNumber, &a.Name, &a.BankName,
		&current, &avail, &a.IsActive, &created, &updated)
	if err != nil {
		return nil, err
	}

	a.CurrentBalance = mustDec(current)
	a.AvailableBalance = mustDec(avail)
	a.CreatedAt, _ = time.Parse(time.RFC3339, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &a, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, account_id, amount, category, status, description,
	reference_number, notes, transaction_date, processed_date, verified_date,
	created_by, verified_by, voided_by, created_at, updated_at`

func (s *Store) SaveTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTransaction(ctx, s.db, t)
}

func saveTransaction(ctx context.Context, db execer, t ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			processed_date = excluded.processed_date,
			verified_date = excluded.verified_date,
			verified_by = excluded.verified_by,
			voided_by = excluded.voided_by,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		t.ID, t.AccountID, t.Amount.String(), t.Category, t.Status,
		t.Description, t.ReferenceNumber, t.Notes,
		t.TransactionDate.UTC().Format(time.RFC3339),
		nullTime(t.ProcessedDate), nullTime(t.VerifiedDate),
		t.CreatedBy, nullString(string(t.VerifiedBy)), nullString(string(t.VoidedBy)),
		t.CreatedAt.UTC().Format(time.RFC3339),
		t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StorageError{Op: "save transaction", Err: err}
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db execer, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	t, err := scanTransactionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get transaction", Err: err}
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, f)
}

func listTransactions(ctx context.Context, db execer, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY transaction_date DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(f.Limit), f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan transaction", Err: err}
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransactionRow(row rowScanner) (*ledger.Transaction, error) {
	var (
		t                             ledger.Transaction
		amount                        string
		description, reference, notes sql.NullString
		txDate, created, updated      string
		processed, verified           sql.NullString
		verifiedBy, voidedBy          sql.NullString
	)
	err := row.Scan(&t.ID, &t.AccountID, &amount, &t.Category, &t.Status,
		&description, &reference, &notes, &txDate, &processed, &verified,
		&t.CreatedBy, &verifiedBy, &voidedBy, &created, &updated)
	if err != nil {
		return nil, err
	}

	t.Amount = mustDec(amount)
	t.Description = description.String
	t.ReferenceNumber = reference.String
	t.Notes = notes.String
	t.TransactionDate, _ = time.Parse(time.RFC3339, txDate)
	t.ProcessedDate = parseNullTime(processed)
	t.VerifiedDate = parseNullTime(verified)
	t.VerifiedBy = ledger.ActorID(verifiedBy.String)
	t.VoidedBy = ledger.ActorID(voidedBy.String)
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &t, nil
}

func (s *Store) SumProcessed(ctx context.Context, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumProcessed(ctx, s.db, id, c)
}

func sumProcessed(ctx context.Context, db execer, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	// Amounts are stored as decimal strings, so summing happens in Go
	// rather than in SQL to avoid float arithmetic.
	rows, err := db.QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE account_id = ? AND category = ? AND status = 'processed'`,
		id, c)
	if err != nil {
		return decimal.Zero, &ledger.StorageError{Op: "sum processed", Err: err}
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, &ledger.StorageError{Op: "scan amount", Err: err}
		}
		sum = sum.Add(mustDec(amount))
	}
	return sum, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countByStatus(ctx, s.db, id, st)
}

func countByStatus(ctx context.Context, db execer, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND status = ?`,
		id, st).Scan(&n)
	if err != nil {
		return 0, &ledger.StorageError{Op: "count by status", Err: err}
	}
	return n, nil
}

func (s *Store) LastTransactionDate(ctx context.Context, id ledger.AccountID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastTransactionDate(ctx, s.db, id)
}

func lastTransactionDate(ctx context.Context, db execer, id ledger.AccountID) (*time.Time, error) {
	var last sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT MAX(transaction_date) FROM transactions WHERE account_id = ?`,
		id).Scan(&last)
	if err != nil {
		return nil, &ledger.StorageError{Op: "last transaction date", Err: err}
	}
	return parseNullTime(last), nil
}

// =============================================================================
// FUTURE TRANSACTIONS
// =============================================================================

const futureColumns = `id, account_id, amount, category, description, reference_number,
	notes, due_date, trigger_type, status, triggered_date, processed_date,
	created_by, triggered_by, scrapped_by, notification_days, notification_user_ids,
	created_at, updated_at`

func (s *Store) SaveFutureTransaction(ctx context.Context, ft ledger.FutureTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveFuture(ctx, s.db, ft)
}

func saveFuture(ctx context.Context, db execer, ft ledger.FutureTransaction) error {
	daysJSON, _ := json.Marshal(ft.NotificationDays)
	usersJSON, _ := json.Marshal(ft.NotificationUserIDs)

	query := `
		INSERT INTO future_transactions
		(` + futureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			category = excluded.category,
			description = excluded.description,
			notes = excluded.notes,
			due_date = excluded.due_date,
			trigger_type = excluded.trigger_type,
			status = excluded.status,
			triggered_date = excluded.triggered_date,
			processed_date = excluded.processed_date,
			triggered_by = excluded.triggered_by,
			scrapped_by = excluded.scrapped_by,
			notification_days = excluded.notification_days,
			notification_user_ids = excluded.notification_user_ids,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		ft.ID, ft.AccountID, ft.Amount.String(), ft.Category,
		ft.Description, ft.ReferenceNumber, ft.Notes,
		ft.DueDate.String(), ft.TriggerType, ft.Status,
		nullTime(ft.TriggeredDate), nullTime(ft.ProcessedDate),
		ft.CreatedBy, nullString(string(ft.TriggeredBy)), nullString(string(ft.ScrappedBy)),
		string(daysJSON), string(usersJSON),
		ft.CreatedAt.UTC().Format(time.RFC3339),
		ft.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StorageError{Op: "save future transaction", Err: err}
	}
	return nil
}

func (s *Store) GetFutureTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFuture(ctx, s.db, id)
}

func getFuture(ctx context.Context, db execer, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+futureColumns+` FROM future_transactions WHERE id = ?`, id)

	ft, err := scanFutureRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get future transaction", Err: err}
	}
	return ft, nil
}

func (s *Store) ListFutureTransactions(ctx context.Context, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listFutures(ctx, s.db, f)
}

func listFutures(ctx context.Context, db execer, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + futureColumns + ` FROM future_transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(f.Limit), f.Offset)

	return queryFutures(ctx, db, query, args...)
}

func (s *Store) GetDue(ctx context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDue(ctx, s.db, target)
}

func getDue(ctx context.Context, db execer, target ledger.Date) ([]ledger.FutureTransaction, error) {
	query := `
		SELECT ` + futureColumns + ` FROM future_transactions
		WHERE status = 'scheduled' AND trigger_type = 'automatic' AND due_date <= ?
		ORDER BY due_date ASC, id ASC`
	return queryFutures(ctx, db, query, target.String())
}

func queryFutures(ctx context.Context, db execer, query string, args ...any) ([]ledger.FutureTransaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "query future transactions", Err: err}
	}
	defer rows.Close()

	var out []ledger.FutureTransaction
	for rows.Next() {
		ft, err := scanFutureRow(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan future transaction", Err: err}
		}
		out = append(out, *ft)
	}
	return out, rows.Err()
}

func scanFutureRow(row rowScanner) (*ledger.FutureTransaction, error) {
	var (
		ft                            ledger.FutureTransaction
		amount, dueDate               string
		description, reference, notes sql.NullString
		triggered, processed          sql.NullString
		triggeredBy, scrappedBy       sql.NullString
		daysJSON, usersJSON           sql.NullString
		created, updated              string
	)
	err := row.Scan(&ft.ID, &ft.AccountID, &amount, &ft.Category,
		&description, &reference, &notes, &dueDate, &ft.TriggerType, &ft.Status,
		&triggered, &processed, &ft.CreatedBy, &triggeredBy, &scrappedBy,
		&daysJSON, &usersJSON, &created, &updated)
	if err != nil {
		return nil, err
	}

	ft.Amount = mustDec(amount)
	ft.Description = description.String
	ft.ReferenceNumber = reference.String
	ft.Notes = notes.String
	ft.DueDate, _ = ledger.ParseDate(dueDate)
	ft.TriggeredDate = parseNullTime(triggered)
	ft.ProcessedDate = parseNullTime(processed)
	ft.TriggeredBy = ledger.ActorID(triggeredBy.String)
	ft.ScrappedBy = ledger.ActorID(scrappedBy.String)
	if daysJSON.Valid && daysJSON.String != "" {
		json.Unmarshal([]byte(daysJSON.String), &ft.NotificationDays)
	}
	if usersJSON.Valid && usersJSON.String != "" {
		json.Unmarshal([]byte(usersJSON.String), &ft.NotificationUserIDs)
	}
	ft.CreatedAt, _ = time.Parse(time.RFC3339, created)
	ft.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &ft, nil
}

func (s *Store) ClaimFutureTransaction(ctx context.Context, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claimFuture(ctx, s.db, id, from, to)
}

func claimFuture(ctx context.Context, db execer, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	// Status-guarded update: the rows-affected check is the whole
	// concurrency story. Exactly one concurrent claimant sees 1 row.
	res, err := db.ExecContext(ctx, `
		UPDATE future_transactions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now().UTC().Format(time.RFC3339), id, from)
	if err != nil {
		return false, &ledger.StorageError{Op: "claim future transaction", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.StorageError{Op: "claim rows affected", Err: err}
	}
	return n == 1, nil
}

func (s *Store) ExpireOverdue(ctx context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return expireOverdue(ctx, s.db, before)
}

func expireOverdue(ctx context.Context, db execer, before ledger.Date) ([]ledger.TransactionID, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM future_transactions
		WHERE status = 'scheduled' AND trigger_type = 'automatic' AND due_date < ?
		ORDER BY id ASC`, before.String())
	if err != nil {
		return nil, &ledger.StorageError{Op: "find overdue", Err: err}
	}
	var ids []ledger.TransactionID
	for rows.Next() {
		var id ledger.TransactionID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &ledger.StorageError{Op: "scan overdue id", Err: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &ledger.StorageError{Op: "find overdue", Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
		UPDATE future_transactions
		SET status = 'expired', processed_date = ?, updated_at = ?
		WHERE status = 'scheduled' AND trigger_type = 'automatic' AND due_date < ?`,
		now, now, before.String())
	if err != nil {
		return nil, &ledger.StorageError{Op: "expire overdue", Err: err}
	}
	return ids, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StorageError{Op: "begin transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.StorageError{Op: "commit transaction", Err: err}
	}
	return nil
}

// txStore routes every Store call through the open *sql.Tx. The parent
// mutex is already held for the whole unit of work.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveAccount(ctx context.Context, a ledger.Account) error {
	return saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	query := `
		SELECT id, account_number, name, bank_name, current_balance, available_balance,
		       is_active, created_at, updated_at
		FROM accounts`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY account_number ASC`

	rows, err := ts.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list accounts", Err: err}
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan account", Err: err}
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (ts *txStore) SaveTransaction(ctx context.Context, t ledger.Transaction) error {
	return saveTransaction(ctx, ts.tx, t)
}

func (ts *txStore) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, ts.tx, f)
}

func (ts *txStore) SumProcessed(ctx context.Context, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	return sumProcessed(ctx, ts.tx, id, c)
}

func (ts *txStore) CountByStatus(ctx context.Context, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	return countByStatus(ctx, ts.tx, id, st)
}

func (ts *txStore) LastTransactionDate(ctx context.Context, id ledger.AccountID) (*time.Time, error) {
	return lastTransactionDate(ctx, ts.tx, id)
}

func (ts *txStore) SaveFutureTransaction(ctx context.Context, ft ledger.FutureTransaction) error {
	return saveFuture(ctx, ts.tx, ft)
}

func (ts *txStore) GetFutureTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	return getFuture(ctx, ts.tx, id)
}

func (ts *txStore) ListFutureTransactions(ctx context.Context, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	return listFutures(ctx, ts.tx, f)
}

func (ts *txStore) GetDue(ctx context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	return getDue(ctx, ts.tx, target)
}

func (ts *txStore) ClaimFutureTransaction(ctx context.Context, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	return claimFuture(ctx, ts.tx, id, from, to)
}

func (ts *txStore) ExpireOverdue(ctx context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	return expireOverdue(ctx, ts.tx, before)
}

// =============================================================================
// HELPERS
// =============================================================================

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
