// internal/util/errors_test.go
package util

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageFaultKeepsBothCauses(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageFault("persist ledger", cause)

	assert.ErrorIs(t, err, ErrStorageFault)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "persist ledger")

	// Wrapping twice does not stack another prefix.
	assert.Same(t, err, StorageFault("outer", err))
	assert.Nil(t, StorageFault("noop", nil))
}

func TestSelfTransferIsInvalidAmount(t *testing.T) {
	assert.True(t, IsError(ErrSelfTransfer, ErrInvalidAmount))
	assert.Equal(t, "self_transfer", ErrorCode(ErrSelfTransfer))
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("get: %w", ErrNotFound):                "not_found",
		ErrInvalidAmount:                                  "invalid_amount",
		ErrInvalidAccountKey:                              "invalid_account_key",
		fmt.Errorf("transfer: %w", ErrInsufficientFunds): "insufficient_funds",
		StorageFault("x", errors.New("boom")):             "storage_fault",
		ErrInvalidInput:                                   "invalid_input",
		errors.New("other"):                               "internal",
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorCode(err), err.Error())
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
