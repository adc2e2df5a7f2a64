// internal/repository/sqlstore/history_repo.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

// HistoryRepository runs the history queries.
type HistoryRepository struct {
	rebind func(string) string
}

// NewHistoryRepository creates a HistoryRepository.
func NewHistoryRepository(rebind func(string) string) *HistoryRepository {
	return &HistoryRepository{rebind: rebind}
}

// LastTimestamp returns the newest entry time of key in Unix milliseconds (0 when
// the log is empty), or util.ErrNotFound when the account does not exist.
func (r *HistoryRepository) LastTimestamp(ctx context.Context, q repository.DBExecutor, key domain.AccountKey) (int64, error) {
	var last int64
	query := r.rebind(`SELECT COALESCE((SELECT MAX(created_at) FROM history WHERE account_key = ?), 0)
              FROM accounts WHERE account_key = ?`)
	if err := q.GetContext(ctx, &last, query, key.String(), key.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("history of %q: %w", key, util.ErrNotFound)
		}
		return 0, util.StorageFault(fmt.Sprintf("failed to read history of %q", key), err)
	}
	return last, nil
}

// Insert stores the entry and assigns its ID.
func (r *HistoryRepository) Insert(ctx context.Context, q repository.DBExecutor, entry *domain.HistoryEntry) error {
	query := r.rebind(`INSERT INTO history (account_key, kind, counterparty, amount, transfer_id, created_at)
              VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err := q.QueryRowContext(ctx, query,
		entry.AccountKey.String(),
		string(entry.Kind),
		counterparty(entry),
		entry.Amount,
		entry.TransferID,
		toMillis(entry.Timestamp),
	).Scan(&id)
	if err != nil {
		return util.StorageFault(fmt.Sprintf("failed to append history for %q", entry.AccountKey), err)
	}
	entry.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListByAccount returns the account's entries newest first; equal timestamps
// are ordered by reverse insertion.
func (r *HistoryRepository) ListByAccount(ctx context.Context, q repository.DBExecutor, key domain.AccountKey) ([]domain.HistoryEntry, error) {
	rows := []historyRow{}
	query := r.rebind(`SELECT ` + historyColumns + ` FROM history
              WHERE account_key = ?
              ORDER BY created_at DESC, id DESC`)
	if err := q.SelectContext(ctx, &rows, query, key.String()); err != nil {
		return nil, util.StorageFault(fmt.Sprintf("failed to list history of %q", key), err)
	}
	out := make([]domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// DeleteAll removes every history entry.
func (r *HistoryRepository) DeleteAll(ctx context.Context, q repository.DBExecutor) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return util.StorageFault("failed to delete history", err)
	}
	return nil
}
