// internal/domain/amount.go
package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"campus-coin/internal/util"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Bounds checked before any arithmetic: decimal expands the exponent into
// digits, so "1e20000000" would otherwise cost seconds of CPU.
const (
	maxAmountExponent = 18
	maxAmountDigits   = 38
	maxEchoedInput    = 32
)

// Amount is a validated, strictly positive number of coins.
// The zero value is invalid; construct with NewAmount or ParseAmount.
type Amount int64

// NewAmount validates an integer amount.
func NewAmount(v int64) (Amount, error) {
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d: %w", v, util.ErrInvalidAmount)
	}
	return Amount(v), nil
}

// ParseAmount converts a decimal into an Amount, rejecting fractions,
// non-positive values and anything outside int64.
func ParseAmount(d decimal.Decimal) (Amount, error) {
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent || d.NumDigits() > maxAmountDigits {
		return 0, fmt.Errorf("amount is out of range: %w", util.ErrInvalidAmount)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount must be a whole number: %w", util.ErrInvalidAmount)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive: %w", util.ErrInvalidAmount)
	}
	if d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount is too large: %w", util.ErrInvalidAmount)
	}
	return Amount(d.IntPart()), nil
}

// ParseAmountString parses a textual amount such as "200" or "1e2".
func ParseAmountString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %s is not a number: %w", echo(s), util.ErrInvalidAmount)
	}
	a, err := ParseAmount(d)
	if err != nil {
		return 0, fmt.Errorf("amount %s: %w", echo(s), err)
	}
	return a, nil
}

// Valid reports whether the amount is usable for a ledger operation.
func (a Amount) Valid() bool { return a > 0 }

// Int64 returns the raw coin count.
func (a Amount) Int64() int64 { return int64(a) }

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("amount is required: %w", util.ErrInvalidAmount)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("amount %s is not a number: %w", echo(string(data)), util.ErrInvalidAmount)
	}
	parsed, err := ParseAmount(d)
	if err != nil {
		return fmt.Errorf("amount %s: %w", echo(string(data)), err)
	}
	*a = parsed
	return nil
}

// echo quotes client input for error messages, cut to a bounded length.
func echo(raw string) string {
	if len(raw) > maxEchoedInput {
		raw = raw[:maxEchoedInput] + "..."
	}
	return strconv.Quote(raw)
}
