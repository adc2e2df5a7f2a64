// internal/repository/history_repo.go
package repository

import (
	"context"

	"campus-coin/internal/domain"
)

// HistoryLog is the append-only, per-account record of ledger events.
type HistoryLog interface {
	// Append adds one entry to the owning account's log and assigns entry.ID.
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	// ListFor returns the account's entries newest first.
	ListFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error)
}
