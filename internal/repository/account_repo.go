// internal/repository/account_repo.go
package repository

import (
	"context"

	"campus-coin/internal/domain"
)

// AccountStore holds each account's identity and balance.
type AccountStore interface {
	// GetAccount returns util.ErrNotFound for unknown keys.
	GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	// CreateIfAbsent is idempotent: an existing account is returned unchanged.
	CreateIfAbsent(ctx context.Context, key domain.AccountKey, initialBalance int64) (*domain.Account, error)
	// ApplyDelta atomically adds delta to the balance. It fails with util.ErrInsufficientFunds
	// when a negative delta would leave the balance below zero.
	ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error)
	// Snapshot returns every account in insertion order.
	Snapshot(ctx context.Context) ([]domain.Account, error)
}
