// internal/repository/postgres/store.go

// Package postgres opens the ledger on PostgreSQL (sqlx + lib/pq).
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/repository/sqlstore"
	"campus-coin/pkg/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("postgres migrations: %v", err))
	}
	return sub
}

// lockAccountsQuery locks the rows of a unit of work in key order, so two
// transfers over the same pair of accounts always queue instead of deadlocking.
const lockAccountsQuery = `SELECT account_key FROM accounts
              WHERE account_key = ANY($1)
              ORDER BY account_key
              FOR UPDATE`

// LockAccounts takes row locks on keys for the rest of the transaction.
func LockAccounts(ctx context.Context, q repository.DBExecutor, keys []domain.AccountKey) error {
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	var locked []string
	if err := q.SelectContext(ctx, &locked, lockAccountsQuery, pq.Array(raw)); err != nil {
		return fmt.Errorf("failed to lock accounts %v: %w", raw, err)
	}
	return nil
}

// New wraps an already migrated connection.
func New(conn *sqlx.DB) *sqlstore.Store {
	return sqlstore.New(conn, sqlstore.WithRowLocker(LockAccounts))
}

// Open connects with cfg and applies migrations.
func Open(ctx context.Context, cfg db.Config) (*sqlstore.Store, error) {
	conn, err := db.NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, conn, Migrations()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate PostgreSQL ledger: %w", err)
	}
	return New(conn), nil
}
