// internal/api/types/response.go
package types

import (
	"time"

	"campus-coin/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"` // Human-readable message
	Code  string `json:"code"`  // Stable kind, e.g. "insufficient_funds"
}

// LoginResponse answers POST /login.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Nickname string `json:"nickname"`
	Balance  int64  `json:"balance"`
}

// BalanceResponse answers GET /balance/{nickname} and POST /quest.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// TransferResponse answers POST /send.
type TransferResponse struct {
	Success         bool  `json:"success"`
	Balance         int64 `json:"balance"`          // Sender's balance after the transfer
	ReceiverBalance int64 `json:"receiver_balance"` // Receiver's balance after the transfer
}

// RankingEntry is one row of GET /ranking.
type RankingEntry struct {
	Nickname string `json:"nickname"`
	Balance  int64  `json:"balance"`
}

// HistoryItem is one row of GET /history/{nickname}. Sender is null for quest rewards.
type HistoryItem struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Sender     *string   `json:"sender"`
	Receiver   string    `json:"receiver"`
	Amount     int64     `json:"amount"`
	TransferID string    `json:"transfer_id,omitempty"`
	Date       time.Time `json:"date"`
}

// NewRanking converts ranked accounts into response rows.
func NewRanking(accounts []domain.Account) []RankingEntry {
	out := make([]RankingEntry, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, RankingEntry{Nickname: acc.Key.String(), Balance: acc.Balance})
	}
	return out
}

// NewHistory converts entries into response rows, keeping their order.
func NewHistory(entries []domain.HistoryEntry) []HistoryItem {
	out := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		item := HistoryItem{
			ID:         e.ID,
			Type:       string(e.Kind),
			Receiver:   e.AccountKey.String(),
			Amount:     e.Amount,
			TransferID: e.TransferID,
			Date:       e.Timestamp,
		}
		owner := e.AccountKey.String()
		if e.Counterparty != nil {
			other := e.Counterparty.String()
			switch e.Kind {
			case domain.HistoryKindTransferOut:
				item.Sender, item.Receiver = &owner, other
			case domain.HistoryKindTransferIn:
				item.Sender = &other
			}
		}
		out = append(out, item)
	}
	return out
}
