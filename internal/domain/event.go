// internal/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEventType names what changed.
type LedgerEventType string

const (
	LedgerEventQuestReward LedgerEventType = "quest-reward"
	LedgerEventTransfer    LedgerEventType = "transfer"
)

// LedgerEvent is broadcast to observers after a committed mutation.
// It carries results only; observers have no write access to the ledger.
type LedgerEvent struct {
	ID         string           `json:"id"`
	Type       LedgerEventType  `json:"type"`
	Accounts   []AccountKey     `json:"accounts"`
	Amount     int64            `json:"amount,omitempty"`
	Balances   map[string]int64 `json:"balances"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewLedgerEvent creates an event with a fresh ID. Balances are keyed by account.
func NewLedgerEvent(eventType LedgerEventType, amount int64, accounts ...*Account) LedgerEvent {
	evt := LedgerEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Amount:     amount,
		Balances:   make(map[string]int64, len(accounts)),
		OccurredAt: time.Now().UTC(),
	}
	for _, acc := range accounts {
		evt.Accounts = append(evt.Accounts, acc.Key)
		evt.Balances[acc.Key.String()] = acc.Balance
	}
	return evt
}
