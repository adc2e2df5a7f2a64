// internal/repository/postgres/store_test.go
package postgres

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/repository/sqlstore"
	"campus-coin/internal/util"
)

var accountCols = []string{"seq", "account_key", "balance", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "postgres")), mock
}

func q(fragment string) string { return regexp.QuoteMeta(fragment) }

func expectLock(mock sqlmock.Sqlmock, keys ...string) {
	rows := sqlmock.NewRows([]string{"account_key"})
	for _, k := range keys {
		rows.AddRow(k)
	}
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(pq.Array(keys)).WillReturnRows(rows)
}

func accountRows(seq int64, key string, balance int64) *sqlmock.Rows {
	ms := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	return sqlmock.NewRows(accountCols).AddRow(seq, key, balance, ms, ms)
}

func TestAtomicallyLocksRowsInKeyOrder(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	expectLock(mock, "ami", "zen")
	mock.ExpectCommit()

	err := s.Atomically(ctx, []domain.AccountKey{"zen", "ami", "zen"}, func(repository.LedgerTx) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferCommitsBothSides(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	expectLock(mock, "a", "b")
	mock.ExpectQuery(q("UPDATE accounts SET balance = balance + $1")).
		WithArgs(int64(-500), sqlmock.AnyArg(), "a", int64(500), int64(math.MaxInt64)).
		WillReturnRows(accountRows(1, "a", 500))
	mock.ExpectQuery(q("UPDATE accounts SET balance = balance + $1")).
		WithArgs(int64(500), sqlmock.AnyArg(), "b", int64(0), int64(math.MaxInt64-500)).
		WillReturnRows(accountRows(2, "b", 1500))
	mock.ExpectQuery(q("SELECT COALESCE((SELECT MAX(created_at) FROM history")).
		WithArgs("a", "a").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectQuery(q("INSERT INTO history")).
		WithArgs("a", "transfer-out", "b", int64(500), "t-9", at.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(q("SELECT COALESCE((SELECT MAX(created_at) FROM history")).
		WithArgs("b", "b").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectQuery(q("INSERT INTO history")).
		WithArgs("b", "transfer-in", "a", int64(500), "t-9", at.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	out, in := domain.NewTransferEntries("t-9", "a", "b", domain.Amount(500), at)
	err := s.Atomically(ctx, []domain.AccountKey{"b", "a"}, func(tx repository.LedgerTx) error {
		sender, err := tx.ApplyDelta(ctx, "a", -500)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(500), sender.Balance)
		receiver, err := tx.ApplyDelta(ctx, "b", 500)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1500), receiver.Balance)
		if err := tx.Append(ctx, out); err != nil {
			return err
		}
		return tx.Append(ctx, in)
	})
	require.NoError(t, err)
	assert.Equal(t, "11", out.ID)
	assert.Equal(t, "12", in.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDeltaInsufficientFunds(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLock(mock, "a")
	mock.ExpectQuery(q("UPDATE accounts")).
		WithArgs(int64(-500), sqlmock.AnyArg(), "a", int64(500), int64(math.MaxInt64)).
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectQuery(q("FROM accounts WHERE account_key = $1")).
		WithArgs("a").
		WillReturnRows(accountRows(1, "a", 100))
	mock.ExpectRollback()

	_, err := s.ApplyDelta(context.Background(), "a", -500)
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDeltaUnknownAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLock(mock, "ghost")
	mock.ExpectQuery(q("UPDATE accounts")).WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectQuery(q("FROM accounts WHERE account_key = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectRollback()

	_, err := s.ApplyDelta(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockFailureIsStorageFault(t *testing.T) {
	s, mock := newMockStore(t)
	dbErr := errors.New("deadlock detected")

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnError(dbErr)
	mock.ExpectRollback()

	called := false
	err := s.Atomically(context.Background(), []domain.AccountKey{"a"}, func(repository.LedgerTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, util.ErrStorageFault)
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureIsStorageFault(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLock(mock, "a")
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err := s.Atomically(context.Background(), []domain.AccountKey{"a"}, func(repository.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, util.ErrStorageFault)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIfAbsentIgnoresConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(q("ON CONFLICT (account_key) DO NOTHING")).
		WithArgs("aoi", int64(1000), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM accounts WHERE account_key = $1")).
		WithArgs("aoi").
		WillReturnRows(accountRows(7, "aoi", 1320))

	acc, err := s.CreateIfAbsent(context.Background(), "aoi", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1320), acc.Balance, "existing balance wins over the initial one")
	assert.Equal(t, int64(7), acc.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForMapsRows(t *testing.T) {
	s, mock := newMockStore(t)
	ms := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC).UnixMilli()

	rows := sqlmock.NewRows([]string{"id", "account_key", "kind", "counterparty", "amount", "transfer_id", "created_at"}).
		AddRow(int64(5), "a", "transfer-in", "b", int64(30), "t-1", ms).
		AddRow(int64(4), "a", "quest-reward", nil, int64(200), "", ms-1000)
	mock.ExpectQuery(q("ORDER BY created_at DESC, id DESC")).WithArgs("a").WillReturnRows(rows)

	hist, err := s.ListFor(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "5", hist[0].ID)
	require.NotNil(t, hist[0].Counterparty)
	assert.Equal(t, domain.AccountKey("b"), *hist[0].Counterparty)
	assert.Equal(t, domain.HistoryKindQuestReward, hist[1].Kind)
	assert.Nil(t, hist[1].Counterparty)
	assert.Equal(t, time.UnixMilli(ms).UTC(), hist[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotQueryFailureIsStorageFault(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("ORDER BY seq ASC")).WillReturnError(errors.New("relation does not exist"))

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, util.ErrStorageFault)
}
