// internal/repository/sqlstore/rows.go
package sqlstore

import (
	"database/sql"
	"strconv"
	"time"

	"campus-coin/internal/domain"
)

// Timestamps are stored as Unix milliseconds so both drivers share one schema.
const accountColumns = "seq, account_key, balance, created_at, updated_at"

const historyColumns = "id, account_key, kind, counterparty, amount, transfer_id, created_at"

type accountRow struct {
	Seq       int64  `db:"seq"`
	Key       string `db:"account_key"`
	Balance   int64  `db:"balance"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r accountRow) toDomain() *domain.Account {
	return &domain.Account{
		Key:       domain.AccountKey(r.Key),
		Balance:   r.Balance,
		Seq:       r.Seq,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

type historyRow struct {
	ID           int64          `db:"id"`
	AccountKey   string         `db:"account_key"`
	Kind         string         `db:"kind"`
	Counterparty sql.NullString `db:"counterparty"`
	Amount       int64          `db:"amount"`
	TransferID   string         `db:"transfer_id"`
	CreatedAt    int64          `db:"created_at"`
}

func (r historyRow) toDomain() domain.HistoryEntry {
	e := domain.HistoryEntry{
		ID:         strconv.FormatInt(r.ID, 10),
		AccountKey: domain.AccountKey(r.AccountKey),
		Kind:       domain.HistoryKind(r.Kind),
		Amount:     r.Amount,
		TransferID: r.TransferID,
		Timestamp:  fromMillis(r.CreatedAt),
	}
	if r.Counterparty.Valid {
		cp := domain.AccountKey(r.Counterparty.String)
		e.Counterparty = &cp
	}
	return e
}

func counterparty(e *domain.HistoryEntry) sql.NullString {
	if e.Counterparty == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: e.Counterparty.String(), Valid: true}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
