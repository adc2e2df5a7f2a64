// internal/notify/notifier.go

// Package notify tells observers that the ledger changed. Observers only
// receive committed results; they never hold ledger locks or write access.
package notify

import (
	"context"
	"errors"

	"campus-coin/internal/domain"
)

// Notifier publishes a committed ledger event.
type Notifier interface {
	Notify(ctx context.Context, evt domain.LedgerEvent) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, domain.LedgerEvent) error { return nil }

// Multi fans an event out to several notifiers. Every notifier is attempted;
// failures are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt domain.LedgerEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
