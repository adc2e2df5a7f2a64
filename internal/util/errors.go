// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
)

// Ledger error taxonomy. Every failure surfaced by the ledger wraps exactly one of these.
var (
	ErrNotFound          = errors.New("account not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAccountKey = errors.New("invalid account key")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorageFault      = errors.New("storage fault")
	ErrInvalidInput      = errors.New("invalid input provided") // Malformed request bodies

	// ErrSelfTransfer is classified as an invalid amount so callers that only know the
	// base taxonomy still render it as an input problem.
	ErrSelfTransfer = fmt.Errorf("cannot transfer to the same account: %w", ErrInvalidAmount)
)

// IsError reports whether err matches target anywhere in its chain.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// StorageFault wraps an underlying persistence error so that it matches both
// ErrStorageFault and the original cause.
func StorageFault(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFault) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFault, err)
}

// ErrorCode returns the stable, machine-readable kind for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAccountKey):
		return "invalid_account_key"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrStorageFault):
		return "storage_fault"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
