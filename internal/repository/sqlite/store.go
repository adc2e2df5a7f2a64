// internal/repository/sqlite/store.go

// Package sqlite opens the ledger on an embedded SQLite database (modernc.org/sqlite).
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"campus-coin/internal/repository/sqlstore"
	"campus-coin/pkg/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("sqlite migrations: %v", err))
	}
	return sub
}

// Open opens (creating if needed) the database at path and applies migrations.
// SQLite serialises writers itself and the pool holds a single connection, so no
// row locking is needed.
func Open(ctx context.Context, path string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	conn, err := db.NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, conn, Migrations()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate SQLite ledger: %w", err)
	}
	return sqlstore.New(conn, opts...), nil
}
