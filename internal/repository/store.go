// internal/repository/store.go
package repository

import (
	"context"
	"sort"
	"time"

	"campus-coin/internal/domain"
)

// LedgerTx is the mutation view handed to Store.Atomically. Reads observe the
// changes already staged in the same unit of work.
type LedgerTx interface {
	GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error)
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	// LastEntryTime is the timestamp of the account's newest history entry,
	// staged ones included, or the zero time when it has none.
	LastEntryTime(ctx context.Context, key domain.AccountKey) (time.Time, error)
}

// Store is the single shared mutable resource behind the ledger.
type Store interface {
	AccountStore
	HistoryLog

	// Atomically grants exclusive mutation rights over keys, runs fn and commits
	// everything fn staged as one unit. If fn or the commit fails nothing is applied.
	// Keys are locked in lexicographic order so crossing transfers cannot deadlock.
	Atomically(ctx context.Context, keys []domain.AccountKey, fn func(tx LedgerTx) error) error
	// Reset drops every account and history entry.
	Reset(ctx context.Context) error
	Close() error
}

// Pinger is implemented by stores that can report whether they are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SortedKeys returns the distinct keys in lock-acquisition order.
func SortedKeys(keys []domain.AccountKey) []domain.AccountKey {
	seen := make(map[domain.AccountKey]struct{}, len(keys))
	out := make([]domain.AccountKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
