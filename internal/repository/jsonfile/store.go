// internal/repository/jsonfile/store.go
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository/memory"
)

const fileVersion = 1

// document is the on-disk layout: account key -> {balance, history}.
type document struct {
	Version  int                    `json:"version"`
	NextSeq  int64                  `json:"next_seq"`
	Accounts map[string]fileAccount `json:"accounts"`
}

type fileAccount struct {
	Balance   int64                 `json:"balance"`
	Seq       int64                 `json:"seq"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	History   []domain.HistoryEntry `json:"history"`
}

// Persister writes the whole ledger to a single JSON file. Each write goes to a
// temporary file in the same directory which is synced and renamed over the
// target, so readers never see a half-written document.
type Persister struct {
	path string
}

// NewPersister creates a persister for path.
func NewPersister(path string) *Persister {
	return &Persister{path: path}
}

// Open loads path (if it exists) and returns a memory store that persists every
// commit back to it before acknowledging.
func Open(path string) (*memory.Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("json file path is required")
	}
	p := NewPersister(filepath.Clean(path))
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	state, err := p.Load()
	if err != nil {
		return nil, err
	}
	return memory.NewPersistentStore(state, p), nil
}

// Load reads the ledger from disk. A missing file yields an empty ledger.
func (p *Persister) Load() (memory.State, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return memory.State{NextSeq: 1}, nil
	}
	if err != nil {
		return memory.State{}, fmt.Errorf("read ledger file %s: %w", p.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return memory.State{}, fmt.Errorf("decode ledger file %s: %w", p.path, err)
	}
	return fromDocument(doc), nil
}

// Persist implements memory.Persister.
func (p *Persister) Persist(ctx context.Context, state memory.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(toDocument(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // No-op once renamed
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

func toDocument(state memory.State) document {
	doc := document{
		Version:  fileVersion,
		NextSeq:  state.NextSeq,
		Accounts: make(map[string]fileAccount, len(state.Accounts)),
	}
	for _, as := range state.Accounts {
		hist := as.History
		if hist == nil {
			hist = []domain.HistoryEntry{}
		}
		doc.Accounts[as.Account.Key.String()] = fileAccount{
			Balance:   as.Account.Balance,
			Seq:       as.Account.Seq,
			CreatedAt: as.Account.CreatedAt,
			UpdatedAt: as.Account.UpdatedAt,
			History:   hist,
		}
	}
	return doc
}

func fromDocument(doc document) memory.State {
	state := memory.State{NextSeq: doc.NextSeq}
	for key, fa := range doc.Accounts {
		state.Accounts = append(state.Accounts, memory.AccountState{
			Account: domain.Account{
				Key:       domain.AccountKey(key),
				Balance:   fa.Balance,
				Seq:       fa.Seq,
				CreatedAt: fa.CreatedAt,
				UpdatedAt: fa.UpdatedAt,
			},
			History: fa.History,
		})
	}
	return state
}
