// internal/repository/sqlstore/store.go

// Package sqlstore implements repository.Store on top of a SQL database through sqlx.
// The sqlite and postgres packages supply the connection, schema and locking strategy.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
	"campus-coin/pkg/db"
)

// RowLocker takes exclusive row locks on keys, which arrive sorted, inside the
// unit of work's transaction.
type RowLocker func(ctx context.Context, q repository.DBExecutor, keys []domain.AccountKey) error

// Option configures a Store.
type Option func(*Store)

// WithRowLocker installs a RowLocker, for databases with concurrent writers.
func WithRowLocker(lock RowLocker) Option {
	return func(s *Store) { s.lockRows = lock }
}

// WithClock overrides the time source used for account creation and balance updates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements repository.Store with one SQL transaction per unit of work.
type Store struct {
	conn     *sqlx.DB
	accounts *AccountRepository
	history  *HistoryRepository
	lockRows RowLocker
	now      func() time.Time
}

// New wraps an open, migrated database.
func New(conn *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		conn:     conn,
		accounts: NewAccountRepository(conn.Rebind),
		history:  NewHistoryRepository(conn.Rebind),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping implements repository.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return util.StorageFault("ping", err)
	}
	return nil
}

// GetAccount implements repository.AccountStore.
func (s *Store) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	return s.accounts.Get(ctx, s.conn, key)
}

// CreateIfAbsent implements repository.AccountStore.
func (s *Store) CreateIfAbsent(ctx context.Context, key domain.AccountKey, initialBalance int64) (*domain.Account, error) {
	acc := domain.NewAccount(key, initialBalance)
	acc.CreatedAt, acc.UpdatedAt = s.now(), s.now()
	if err := s.accounts.InsertIfAbsent(ctx, s.conn, acc); err != nil {
		return nil, err
	}
	return s.accounts.Get(ctx, s.conn, key)
}

// ApplyDelta implements repository.AccountStore.
func (s *Store) ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	var out *domain.Account
	err := s.Atomically(ctx, []domain.AccountKey{key}, func(tx repository.LedgerTx) error {
		acc, err := tx.ApplyDelta(ctx, key, delta)
		out = acc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot implements repository.AccountStore.
func (s *Store) Snapshot(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.List(ctx, s.conn)
}

// Append implements repository.HistoryLog.
func (s *Store) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	return s.Atomically(ctx, []domain.AccountKey{entry.AccountKey}, func(tx repository.LedgerTx) error {
		return tx.Append(ctx, entry)
	})
}

// ListFor implements repository.HistoryLog.
func (s *Store) ListFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error) {
	return s.history.ListByAccount(ctx, s.conn, key)
}

// Atomically implements repository.Store. fn must only touch the database
// through the LedgerTx it is given.
func (s *Store) Atomically(ctx context.Context, keys []domain.AccountKey, fn func(tx repository.LedgerTx) error) error {
	sorted := repository.SortedKeys(keys)

	tx, err := db.BeginTx(ctx, s.conn)
	if err != nil {
		return util.StorageFault("unit of work", err)
	}
	defer db.RollbackTx(tx) // Rollback on error, or if commit fails

	if s.lockRows != nil && len(sorted) > 0 {
		if err := s.lockRows(ctx, tx, sorted); err != nil {
			return util.StorageFault("lock accounts", err)
		}
	}

	view := &sqlTx{store: s, q: tx, locked: make(map[domain.AccountKey]struct{}, len(sorted))}
	for _, k := range sorted {
		view.locked[k] = struct{}{}
	}
	if err := fn(view); err != nil {
		return err
	}

	if err := db.CommitTx(tx); err != nil {
		return util.StorageFault("unit of work", err)
	}
	return nil
}

// Reset implements repository.Store.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, s.conn)
	if err != nil {
		return util.StorageFault("reset ledger", err)
	}
	defer db.RollbackTx(tx)

	if err := s.history.DeleteAll(ctx, tx); err != nil {
		return err
	}
	if err := s.accounts.DeleteAll(ctx, tx); err != nil {
		return err
	}
	if err := db.CommitTx(tx); err != nil {
		return util.StorageFault("reset ledger", err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	return s.conn.Close()
}

// sqlTx is the LedgerTx handed to Atomically callbacks.
type sqlTx struct {
	store  *Store
	q      repository.DBExecutor
	locked map[domain.AccountKey]struct{}
}

func (tx *sqlTx) check(key domain.AccountKey) error {
	if _, ok := tx.locked[key]; !ok {
		return fmt.Errorf("account %q is not locked by this unit of work", key)
	}
	return nil
}

func (tx *sqlTx) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	if err := tx.check(key); err != nil {
		return nil, err
	}
	return tx.store.accounts.Get(ctx, tx.q, key)
}

func (tx *sqlTx) ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	if err := tx.check(key); err != nil {
		return nil, err
	}
	return tx.store.accounts.AddToBalance(ctx, tx.q, key, delta, tx.store.now())
}

func (tx *sqlTx) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := tx.check(entry.AccountKey); err != nil {
		return err
	}
	last, err := tx.store.history.LastTimestamp(ctx, tx.q, entry.AccountKey)
	if err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.store.now()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Millisecond)
	// Keep timestamps non-decreasing per account even if the wall clock steps back.
	if toMillis(entry.Timestamp) < last {
		entry.Timestamp = fromMillis(last)
	}
	return tx.store.history.Insert(ctx, tx.q, entry)
}

func (tx *sqlTx) LastEntryTime(ctx context.Context, key domain.AccountKey) (time.Time, error) {
	if err := tx.check(key); err != nil {
		return time.Time{}, err
	}
	last, err := tx.store.history.LastTimestamp(ctx, tx.q, key)
	if err != nil || last == 0 {
		return time.Time{}, err
	}
	return fromMillis(last), nil
}

// Compile-time check: ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
var _ repository.Pinger = (*Store)(nil)
