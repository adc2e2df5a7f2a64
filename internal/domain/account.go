// internal/domain/account.go
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"campus-coin/internal/util"
)

// DefaultInitialBalance is credited to every account on creation.
const DefaultInitialBalance int64 = 1000

// MaxAccountKeyLength bounds nicknames, e-mails and anonymous IDs alike.
const MaxAccountKeyLength = 64

// AccountKey uniquely identifies an account (nickname, email or anonymous ID).
type AccountKey string

// ParseAccountKey validates a raw key at the trust boundary.
func ParseAccountKey(raw string) (AccountKey, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", fmt.Errorf("account key is required: %w", util.ErrInvalidAccountKey)
	}
	if utf8.RuneCountInString(key) > MaxAccountKeyLength {
		return "", fmt.Errorf("account key longer than %d characters: %w", MaxAccountKeyLength, util.ErrInvalidAccountKey)
	}
	return AccountKey(key), nil
}

func (k AccountKey) String() string { return string(k) }

// Account represents a user's coin balance.
type Account struct {
	Key       AccountKey `db:"account_key" json:"nickname"`  // Unique, stable identity
	Balance   int64      `db:"balance" json:"balance"`       // Never negative after a committed operation
	Seq       int64      `db:"seq" json:"-"`                 // Insertion order, used to break ranking ties
	CreatedAt time.Time  `db:"created_at" json:"created_at"` // Timestamp of creation
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"` // Timestamp of last balance change
}

// NewAccount creates a new Account instance.
func NewAccount(key AccountKey, initialBalance int64) *Account {
	now := time.Now().UTC()
	return &Account{
		Key:       key,
		Balance:   initialBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
