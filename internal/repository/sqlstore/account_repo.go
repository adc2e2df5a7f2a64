// internal/repository/sqlstore/account_repo.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

// AccountRepository runs the accounts queries. Methods receive the DBExecutor so
// the same query works on the pool or inside a transaction.
type AccountRepository struct {
	rebind func(string) string
}

// NewAccountRepository creates an AccountRepository. rebind turns the "?"
// placeholders into the driver's bind style.
func NewAccountRepository(rebind func(string) string) *AccountRepository {
	return &AccountRepository{rebind: rebind}
}

// Get retrieves an account by key.
func (r *AccountRepository) Get(ctx context.Context, q repository.DBExecutor, key domain.AccountKey) (*domain.Account, error) {
	var row accountRow
	query := r.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE account_key = ?`)
	if err := q.GetContext(ctx, &row, query, key.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", key, util.ErrNotFound)
		}
		return nil, util.StorageFault(fmt.Sprintf("failed to get account %q", key), err)
	}
	return row.toDomain(), nil
}

// InsertIfAbsent creates the account unless the key is already taken.
func (r *AccountRepository) InsertIfAbsent(ctx context.Context, q repository.DBExecutor, acc *domain.Account) error {
	query := r.rebind(`INSERT INTO accounts (account_key, balance, created_at, updated_at)
              VALUES (?, ?, ?, ?) ON CONFLICT (account_key) DO NOTHING`)
	_, err := q.ExecContext(ctx, query, acc.Key.String(), acc.Balance, toMillis(acc.CreatedAt), toMillis(acc.UpdatedAt))
	if err != nil {
		return util.StorageFault(fmt.Sprintf("failed to create account %q", acc.Key), err)
	}
	return nil
}

// AddToBalance adds delta in a single guarded statement: the row is only updated
// when the result stays within [0, MaxInt64].
func (r *AccountRepository) AddToBalance(ctx context.Context, q repository.DBExecutor, key domain.AccountKey, delta int64, at time.Time) (*domain.Account, error) {
	minBefore, maxBefore := int64(0), int64(math.MaxInt64)
	if delta < 0 {
		minBefore = -delta
	} else {
		maxBefore = math.MaxInt64 - delta
	}

	var row accountRow
	query := r.rebind(`UPDATE accounts SET balance = balance + ?, updated_at = ?
              WHERE account_key = ? AND balance >= ? AND balance <= ?
              RETURNING ` + accountColumns)
	err := q.GetContext(ctx, &row, query, delta, toMillis(at), key.String(), minBefore, maxBefore)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, util.StorageFault(fmt.Sprintf("failed to update balance of %q", key), err)
	}

	// Nothing matched: tell a missing account apart from a failed guard.
	current, getErr := r.Get(ctx, q, key)
	if getErr != nil {
		return nil, getErr
	}
	if delta < 0 {
		return nil, fmt.Errorf("account %q has %d, needs %d: %w", key, current.Balance, -delta, util.ErrInsufficientFunds)
	}
	return nil, fmt.Errorf("account %q balance would overflow: %w", key, util.ErrInvalidAmount)
}

// List returns every account in insertion order.
func (r *AccountRepository) List(ctx context.Context, q repository.DBExecutor) ([]domain.Account, error) {
	rows := []accountRow{}
	if err := q.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM accounts ORDER BY seq ASC`); err != nil {
		return nil, util.StorageFault("failed to list accounts", err)
	}
	out := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

// DeleteAll removes every account. History must be cleared first.
func (r *AccountRepository) DeleteAll(ctx context.Context, q repository.DBExecutor) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return util.StorageFault("failed to delete accounts", err)
	}
	return nil
}
