/*
Package postgres provides a PostgreSQL-backed implementation of the
storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore on pgx. Database-level
  concurrency control (row locks, real transactions) replaces the mutex
  the SQLite store needs, so multiple engine instances can share one
  database.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite: single-node implementation with the same schema shape
*/
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/ledger"
)

const defaultPageSize = 100

// Store implements ledger.TxStore using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &ledger.StorageError{Op: "connect", Err: err}
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, &ledger.StorageError{Op: "migrate", Err: err}
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		account_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		bank_name TEXT,
		current_balance NUMERIC(20,4) NOT NULL,
		available_balance NUMERIC(20,4) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,4) NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		reference_number TEXT,
		notes TEXT,
		transaction_date TIMESTAMPTZ NOT NULL,
		processed_date TIMESTAMPTZ,
		verified_date TIMESTAMPTZ,
		created_by TEXT NOT NULL,
		verified_by TEXT,
		voided_by TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_status
		ON transactions(account_id, status);
	CREATE INDEX IF NOT EXISTS idx_transactions_processed
		ON transactions(account_id, category) WHERE status = 'processed';

	CREATE TABLE IF NOT EXISTS future_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,4) NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		reference_number TEXT,
		notes TEXT,
		due_date DATE NOT NULL,
		trigger_type TEXT NOT NULL,
		status TEXT NOT NULL,
		triggered_date TIMESTAMPTZ,
		processed_date TIMESTAMPTZ,
		created_by TEXT NOT NULL,
		triggered_by TEXT,
		scrapped_by TEXT,
		notification_days JSONB,
		notification_user_ids JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_future_due_scan
		ON future_transactions(due_date) WHERE status = 'scheduled' AND trigger_type = 'automatic';
	CREATE INDEX IF NOT EXISTS idx_future_account_status
		ON future_transactions(account_id, status);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// querier abstracts *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgconnCommandTag matches pgconn.CommandTag's method set used here.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// poolQuerier adapts pgxpool.Pool to the querier interface.
type poolQuerier struct{ pool *pgxpool.Pool }

func (p poolQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	return tag, err
}
func (p poolQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}
func (p poolQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// txQuerier adapts pgx.Tx to the querier interface.
type txQuerier struct{ tx pgx.Tx }

func (t txQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	return tag, err
}
func (t txQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}
func (t txQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (s *Store) q() querier { return poolQuerier{pool: s.pool} }

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	return saveAccount(ctx, s.q(), a)
}

func saveAccount(ctx context.Context, q querier, a ledger.Account) error {
	_, err := q.Exec(ctx, `
		INSERT INTO accounts
		(id, account_number, name, bank_name, current_balance, available_balance, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			account_number = EXCLUDED.account_number,
			name = EXCLUDED.name,
			bank_name = EXCLUDED.bank_name,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.AccountNumber, a.Name, a.BankName,
		a.CurrentBalance, a.AvailableBalance, a.IsActive,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return &ledger.StorageError{Op: "save account", Err: err}
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return getAccount(ctx, s.q(), id)
}

const selectAccount = `
		SELECT id, account_number, name, bank_name, current_balance, available_balance,
		       is_active, created_at, updated_at
		FROM accounts WHERE id = $1`

func getAccount(ctx context.Context, q querier, id ledger.AccountID) (*ledger.Account, error) {
	return queryAccount(ctx, q, selectAccount, id)
}

// getAccountForUpdate locks the account row for the remainder of the
// transaction. Balance adjustments read the account, compute new balances
// and write them back; without the row lock two concurrent units on the
// same account would both read the same starting balance and the second
// commit would overwrite the first's delta. The lock also keeps the
// available-balance check in the adjustment from acting on a stale read.
func getAccountForUpdate(ctx context.Context, q querier, id ledger.AccountID) (*ledger.Account, error) {
	return queryAccount(ctx, q, selectAccount+` FOR UPDATE`, id)
}

func queryAccount(ctx context.Context, q querier, query string, id ledger.AccountID) (*ledger.Account, error) {
	var a ledger.Account
	err := q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AccountNumber, &a.Name, &a.BankName,
		&a.CurrentBalance, &a.AvailableBalance, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get account", Err: err}
	}
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	return listAccounts(ctx, s.q(), activeOnly)
}

func listAccounts(ctx context.Context, q querier, activeOnly bool) ([]ledger.Account, error) {
	query := `
		SELECT id, account_number, name, bank_name, current_balance, available_balance,
		       is_active, created_at, updated_at
		FROM accounts`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY account_number ASC`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list accounts", Err: err}
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.Name, &a.BankName,
			&a.CurrentBalance, &a.AvailableBalance, &a.IsActive,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, &ledger.StorageError{Op: "scan account", Err: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, account_id, amount, category, status, description,
	reference_number, notes, transaction_date, processed_date, verified_date,
	created_by, verified_by, voided_by, created_at, updated_at`

func (s *Store) SaveTransaction(ctx context.Context, t ledger.Transaction) error {
	return saveTransaction(ctx, s.q(), t)
}

func saveTransaction(ctx context.Context, q querier, t ledger.Transaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transactions
		(`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			processed_date = EXCLUDED.processed_date,
			verified_date = EXCLUDED.verified_date,
			verified_by = EXCLUDED.verified_by,
			voided_by = EXCLUDED.voided_by,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.AccountID, t.Amount, t.Category, t.Status,
		t.Description, t.ReferenceNumber, t.Notes,
		t.TransactionDate.UTC(), t.ProcessedDate, t.VerifiedDate,
		t.CreatedBy, nullActor(t.VerifiedBy), nullActor(t.VoidedBy),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return &ledger.StorageError{Op: "save transaction", Err: err}
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(ctx, s.q(), id)
}

func getTransaction(ctx context.Context, q querier, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get transaction", Err: err}
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, s.q(), f)
}

func listTransactions(ctx context.Context, q querier, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY transaction_date DESC, created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := q.Query(ctx, query,
		string(f.AccountID), string(f.Status), pageLimit(f.Limit), f.Offset)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan transaction", Err: err}
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		t                             ledger.Transaction
		description, reference, notes *string
		verifiedBy, voidedBy          *string
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Category, &t.Status,
		&description, &reference, &notes, &t.TransactionDate,
		&t.ProcessedDate, &t.VerifiedDate,
		&t.CreatedBy, &verifiedBy, &voidedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = deref(description)
	t.ReferenceNumber = deref(reference)
	t.Notes = deref(notes)
	t.VerifiedBy = ledger.ActorID(deref(verifiedBy))
	t.VoidedBy = ledger.ActorID(deref(voidedBy))
	return &t, nil
}

func (s *Store) SumProcessed(ctx context.Context, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	return sumProcessed(ctx, s.q(), id, c)
}

func sumProcessed(ctx context.Context, q querier, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND category = $2 AND status = 'processed'`,
		id, c).Scan(&sum)
	if err != nil {
		return decimal.Zero, &ledger.StorageError{Op: "sum processed", Err: err}
	}
	return sum, nil
}

func (s *Store) CountByStatus(ctx context.Context, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	return countByStatus(ctx, s.q(), id, st)
}

func countByStatus(ctx context.Context, q querier, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND status = $2`,
		id, st).Scan(&n)
	if err != nil {
		return 0, &ledger.StorageError{Op: "count by status", Err: err}
	}
	return n, nil
}

func (s *Store) LastTransactionDate(ctx context.Context, id ledger.AccountID) (*time.Time, error) {
	return lastTransactionDate(ctx, s.q(), id)
}

func lastTransactionDate(ctx context.Context, q querier, id ledger.AccountID) (*time.Time, error) {
	var last *time.Time
	err := q.QueryRow(ctx,
		`SELECT MAX(transaction_date) FROM transactions WHERE account_id = $1`,
		id).Scan(&last)
	if err != nil {
		return nil, &ledger.StorageError{Op: "last transaction date", Err: err}
	}
	return last, nil
}

// =============================================================================
// FUTURE TRANSACTIONS
// =============================================================================

const futureColumns = `id, account_id, amount, category, description, reference_number,
	notes, due_date, trigger_type, status, triggered_date, processed_date,
	created_by, triggered_by, scrapped_by, notification_days, notification_user_ids,
	created_at, updated_at`

func (s *Store) SaveFutureTransaction(ctx context.Context, ft ledger.FutureTransaction) error {
	return saveFuture(ctx, s.q(), ft)
}

func saveFuture(ctx context.Context, q querier, ft ledger.FutureTransaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO future_transactions
		(`+futureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			notes = EXCLUDED.notes,
			due_date = EXCLUDED.due_date,
			trigger_type = EXCLUDED.trigger_type,
			status = EXCLUDED.status,
			triggered_date = EXCLUDED.triggered_date,
			processed_date = EXCLUDED.processed_date,
			triggered_by = EXCLUDED.triggered_by,
			scrapped_by = EXCLUDED.scrapped_by,
			notification_days = EXCLUDED.notification_days,
			notification_user_ids = EXCLUDED.notification_user_ids,
			updated_at = EXCLUDED.updated_at`,
		ft.ID, ft.AccountID, ft.Amount, ft.Category,
		ft.Description, ft.ReferenceNumber, ft.Notes,
		ft.DueDate.Time, ft.TriggerType, ft.Status,
		ft.TriggeredDate, ft.ProcessedDate,
		ft.CreatedBy, nullActor(ft.TriggeredBy), nullActor(ft.ScrappedBy),
		ft.NotificationDays, ft.NotificationUserIDs,
		ft.CreatedAt.UTC(), ft.UpdatedAt.UTC())
	if err != nil {
		return &ledger.StorageError{Op: "save future transaction", Err: err}
	}
	return nil
}

func (s *Store) GetFutureTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	return getFuture(ctx, s.q(), id)
}

func getFuture(ctx context.Context, q querier, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	row := q.QueryRow(ctx, `SELECT `+futureColumns+` FROM future_transactions WHERE id = $1`, id)
	ft, err := scanFuture(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "get future transaction", Err: err}
	}
	return ft, nil
}

func (s *Store) ListFutureTransactions(ctx context.Context, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	return listFutures(ctx, s.q(), f)
}

func listFutures(ctx context.Context, q querier, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	query := `SELECT ` + futureColumns + ` FROM future_transactions
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY due_date ASC, id ASC
		LIMIT $3 OFFSET $4`

	rows, err := q.Query(ctx, query,
		string(f.AccountID), string(f.Status), pageLimit(f.Limit), f.Offset)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list future transactions", Err: err}
	}
	defer rows.Close()
	return collectFutures(rows)
}

func (s *Store) GetDue(ctx context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	return getDue(ctx, s.q(), target)
}

func getDue(ctx context.Context, q querier, target ledger.Date) ([]ledger.FutureTransaction, error) {
	rows, err := q.Query(ctx, `
		SELECT `+futureColumns+` FROM future_transactions
		WHERE status = 'scheduled' AND trigger_type = 'automatic' AND due_date <= $1
		ORDER BY due_date ASC, id ASC`, target.Time)
	if err != nil {
		return nil, &ledger.StorageError{Op: "get due", Err: err}
	}
	defer rows.Close()
	return collectFutures(rows)
}

func collectFutures(rows pgx.Rows) ([]ledger.FutureTransaction, error) {
	var out []ledger.FutureTransaction
	for rows.Next() {
		ft, err := scanFuture(rows)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan future transaction", Err: err}
		}
		out = append(out, *ft)
	}
	return out, rows.Err()
}

func scanFuture(row pgx.Row) (*ledger.FutureTransaction, error) {
	var (
		ft                            ledger.FutureTransaction
		description, reference, notes *string
		triggeredBy, scrappedBy       *string
		due                           time.Time
	)
	err := row.Scan(&ft.ID, &ft.AccountID, &ft.Amount, &ft.Category,
		&description, &reference, &notes, &due, &ft.TriggerType, &ft.Status,
		&ft.TriggeredDate, &ft.ProcessedDate,
		&ft.CreatedBy, &triggeredBy, &scrappedBy,
		&ft.NotificationDays, &ft.NotificationUserIDs,
		&ft.CreatedAt, &ft.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ft.Description = deref(description)
	ft.ReferenceNumber = deref(reference)
	ft.Notes = deref(notes)
	ft.DueDate = ledger.DateOf(due)
	ft.TriggeredBy = ledger.ActorID(deref(triggeredBy))
	ft.ScrappedBy = ledger.ActorID(deref(scrappedBy))
	return &ft, nil
}

func (s *Store) ClaimFutureTransaction(ctx context.Context, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	return claimFuture(ctx, s.q(), id, from, to)
}

func claimFuture(ctx context.Context, q querier, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE future_transactions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return false, &ledger.StorageError{Op: "claim future transaction", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ExpireOverdue(ctx context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	return expireOverdue(ctx, s.q(), before)
}

func expireOverdue(ctx context.Context, q querier, before ledger.Date) ([]ledger.TransactionID, error) {
	now := time.Now().UTC()
	rows, err := q.Query(ctx, `
		UPDATE future_transactions
		SET status = 'expired', processed_date = $1, updated_at = $1
		WHERE status = 'scheduled' AND trigger_type = 'automatic' AND due_date < $2
		RETURNING id`, now, before.Time)
	if err != nil {
		return nil, &ledger.StorageError{Op: "expire overdue", Err: err}
	}
	defer rows.Close()

	var ids []ledger.TransactionID
	for rows.Next() {
		var id ledger.TransactionID
		if err := rows.Scan(&id); err != nil {
			return nil, &ledger.StorageError{Op: "scan expired id", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &ledger.StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{q: txQuerier{tx: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &ledger.StorageError{Op: "commit transaction", Err: err}
	}
	return nil
}

type txStore struct {
	q querier
}

func (ts *txStore) SaveAccount(ctx context.Context, a ledger.Account) error {
	return saveAccount(ctx, ts.q, a)
}
func (ts *txStore) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	// Inside a unit of work the account read is the start of a
	// read-modify-write on its balances, so take the row lock.
	return getAccountForUpdate(ctx, ts.q, id)
}
func (ts *txStore) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	return listAccounts(ctx, ts.q, activeOnly)
}
func (ts *txStore) SaveTransaction(ctx context.Context, t ledger.Transaction) error {
	return saveTransaction(ctx, ts.q, t)
}
func (ts *txStore) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.q, id)
}
func (ts *txStore) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, ts.q, f)
}
func (ts *txStore) SumProcessed(ctx context.Context, id ledger.AccountID, c ledger.TransactionCategory) (decimal.Decimal, error) {
	return sumProcessed(ctx, ts.q, id, c)
}
func (ts *txStore) CountByStatus(ctx context.Context, id ledger.AccountID, st ledger.TransactionStatus) (int, error) {
	return countByStatus(ctx, ts.q, id, st)
}
func (ts *txStore) LastTransactionDate(ctx context.Context, id ledger.AccountID) (*time.Time, error) {
	return lastTransactionDate(ctx, ts.q, id)
}
func (ts *txStore) SaveFutureTransaction(ctx context.Context, ft ledger.FutureTransaction) error {
	return saveFuture(ctx, ts.q, ft)
}
func (ts *txStore) GetFutureTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.FutureTransaction, error) {
	return getFuture(ctx, ts.q, id)
}
func (ts *txStore) ListFutureTransactions(ctx context.Context, f ledger.FutureFilter) ([]ledger.FutureTransaction, error) {
	return listFutures(ctx, ts.q, f)
}
func (ts *txStore) GetDue(ctx context.Context, target ledger.Date) ([]ledger.FutureTransaction, error) {
	return getDue(ctx, ts.q, target)
}
func (ts *txStore) ClaimFutureTransaction(ctx context.Context, id ledger.TransactionID, from, to ledger.FutureStatus) (bool, error) {
	return claimFuture(ctx, ts.q, id, from, to)
}
func (ts *txStore) ExpireOverdue(ctx context.Context, before ledger.Date) ([]ledger.TransactionID, error) {
	return expireOverdue(ctx, ts.q, before)
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullActor(a ledger.ActorID) *string {
	if a == "" {
		return nil
	}
	s := string(a)
	return &s
}
