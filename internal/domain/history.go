// internal/domain/history.go
package domain

import "time"

// HistoryKind defines the role an entry plays in its account's log.
type HistoryKind string

const (
	HistoryKindQuestReward HistoryKind = "quest-reward"
	HistoryKindTransferOut HistoryKind = "transfer-out"
	HistoryKindTransferIn  HistoryKind = "transfer-in"
)

// HistoryEntry is one immutable ledger event in a single account's log.
type HistoryEntry struct {
	ID           string      `db:"id" json:"id"`                     // Store-assigned identifier
	AccountKey   AccountKey  `db:"account_key" json:"account"`       // Owning account
	Kind         HistoryKind `db:"kind" json:"type"`                 // quest-reward, transfer-out, transfer-in
	Counterparty *AccountKey `db:"counterparty" json:"counterparty"` // Other side of a transfer, nil for rewards
	Amount       int64       `db:"amount" json:"amount"`             // Positive magnitude
	TransferID   string      `db:"transfer_id" json:"transfer_id"`   // Shared by both sides of a transfer
	Timestamp    time.Time   `db:"created_at" json:"date"`           // Non-decreasing per account
}

// NewQuestRewardEntry creates the entry for a quest reward.
func NewQuestRewardEntry(key AccountKey, amount Amount, at time.Time) *HistoryEntry {
	return &HistoryEntry{
		AccountKey: key,
		Kind:       HistoryKindQuestReward,
		Amount:     amount.Int64(),
		Timestamp:  at,
	}
}

// NewTransferEntries creates the matching pair of entries for one transfer.
func NewTransferEntries(transferID string, from, to AccountKey, amount Amount, at time.Time) (out, in *HistoryEntry) {
	sender, receiver := from, to
	out = &HistoryEntry{
		AccountKey:   from,
		Kind:         HistoryKindTransferOut,
		Counterparty: &receiver,
		Amount:       amount.Int64(),
		TransferID:   transferID,
		Timestamp:    at,
	}
	in = &HistoryEntry{
		AccountKey:   to,
		Kind:         HistoryKindTransferIn,
		Counterparty: &sender,
		Amount:       amount.Int64(),
		TransferID:   transferID,
		Timestamp:    at,
	}
	return out, in
}

// SignedAmount is the effect of the entry on its account's balance.
func (e HistoryEntry) SignedAmount() int64 {
	if e.Kind == HistoryKindTransferOut {
		return -e.Amount
	}
	return e.Amount
}
