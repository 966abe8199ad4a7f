package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recordingQuerier captures every SQL statement it is handed. QueryRow
// returns a row whose Scan reports no rows, which is enough to exercise
// the query-building paths without a live database.
type recordingQuerier struct {
	queries []string
}

func (r *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	r.queries = append(r.queries, sql)
	return zeroTag{}, nil
}

func (r *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.queries = append(r.queries, sql)
	return nil, pgx.ErrNoRows
}

func (r *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r.queries = append(r.queries, sql)
	return emptyRow{}
}

type zeroTag struct{}

func (zeroTag) RowsAffected() int64 { return 0 }

type emptyRow struct{}

func (emptyRow) Scan(dest ...any) error { return pgx.ErrNoRows }

// =============================================================================
// ACCOUNT ROW LOCKING
// =============================================================================

func TestTxAccountReadLocksRow(t *testing.T) {
	// GIVEN: a unit-of-work store over a recording querier
	ctx := context.Background()
	q := &recordingQuerier{}
	ts := &txStore{q: q}

	// WHEN: reading an account inside the unit of work
	account, err := ts.GetAccount(ctx, ledger.AccountID("ACC-1"))
	require.NoError(t, err)
	assert.Nil(t, account)

	// THEN: the read takes the row lock so a concurrent unit on the same
	// account cannot interleave with the balance write
	require.Len(t, q.queries, 1)
	assert.Contains(t, q.queries[0], "FOR UPDATE")
}

func TestPlainAccountReadDoesNotLock(t *testing.T) {
	ctx := context.Background()
	q := &recordingQuerier{}

	_, err := getAccount(ctx, q, ledger.AccountID("ACC-1"))
	require.NoError(t, err)

	require.Len(t, q.queries, 1)
	assert.NotContains(t, q.queries[0], "FOR UPDATE")
}
