// internal/repository/memory/store.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

var (
	errStoreClosed = errors.New("store is closed")
	errLedgerReset = errors.New("ledger was reset during the unit of work")
)

// AccountState is one account together with its history, oldest entry first.
type AccountState struct {
	Account domain.Account
	History []domain.HistoryEntry
}

// State is a consistent copy of the whole ledger.
type State struct {
	NextSeq  int64
	Accounts []AccountState // Insertion order
}

// Persister receives the full ledger after every commit. A returned error
// aborts the commit, leaving the in-memory state untouched.
type Persister interface {
	Persist(ctx context.Context, state State) error
}

type record struct {
	account domain.Account
	history []domain.HistoryEntry
}

// Store is a thread-safe in-memory implementation of repository.Store.
// Committed state is guarded by mu; mutation rights per account by locks.
type Store struct {
	mu        sync.RWMutex
	accounts  map[domain.AccountKey]*record
	nextSeq   int64
	epoch     uint64 // Bumped by Reset; stale units of work cannot commit
	closed    bool
	locks     *keyLocker
	persister Persister
	now       func() time.Time
}

// NewStore creates an empty, purely in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[domain.AccountKey]*record),
		nextSeq:  1,
		locks:    newKeyLocker(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewPersistentStore restores state and reports every commit to p.
func NewPersistentStore(state State, p Persister) *Store {
	s := NewStore()
	s.persister = p
	for _, as := range state.Accounts {
		hist := make([]domain.HistoryEntry, len(as.History))
		copy(hist, as.History)
		s.accounts[as.Account.Key] = &record{account: as.Account, history: hist}
		if as.Account.Seq >= s.nextSeq {
			s.nextSeq = as.Account.Seq + 1
		}
	}
	if state.NextSeq > s.nextSeq {
		s.nextSeq = state.NextSeq
	}
	return s
}

// GetAccount implements repository.AccountStore.
func (s *Store) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, util.StorageFault("get account", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[key]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", key, util.ErrNotFound)
	}
	acc := rec.account
	return &acc, nil
}

// CreateIfAbsent implements repository.AccountStore.
func (s *Store) CreateIfAbsent(ctx context.Context, key domain.AccountKey, initialBalance int64) (*domain.Account, error) {
	var out *domain.Account
	err := s.Atomically(ctx, []domain.AccountKey{key}, func(tx repository.LedgerTx) error {
		acc, err := tx.(*memTx).createIfAbsent(key, initialBalance)
		out = acc
		return err
	})
	if err != nil {
		return nil, err
	}
	// Seq is assigned at commit; re-read the committed copy.
	return s.GetAccount(ctx, out.Key)
}

// ApplyDelta implements repository.AccountStore.
func (s *Store) ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	var out *domain.Account
	err := s.Atomically(ctx, []domain.AccountKey{key}, func(tx repository.LedgerTx) error {
		acc, err := tx.ApplyDelta(ctx, key, delta)
		out = acc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot implements repository.AccountStore.
func (s *Store) Snapshot(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, util.StorageFault("snapshot accounts", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, rec := range s.accounts {
		out = append(out, rec.account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Append implements repository.HistoryLog.
func (s *Store) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	return s.Atomically(ctx, []domain.AccountKey{entry.AccountKey}, func(tx repository.LedgerTx) error {
		return tx.Append(ctx, entry)
	})
}

// ListFor implements repository.HistoryLog.
func (s *Store) ListFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, util.StorageFault("list history", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[key]
	if !ok {
		return []domain.HistoryEntry{}, nil
	}
	out := make([]domain.HistoryEntry, len(rec.history))
	for i, e := range rec.history {
		out[len(out)-1-i] = e
	}
	return out, nil
}

// Atomically implements repository.Store.
func (s *Store) Atomically(ctx context.Context, keys []domain.AccountKey, fn func(tx repository.LedgerTx) error) error {
	sorted := repository.SortedKeys(keys)
	release, err := s.locks.acquire(ctx, sorted)
	if err != nil {
		return util.StorageFault("acquire account locks", err)
	}
	defer release()

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	tx := &memTx{
		store:  s,
		epoch:  epoch,
		locked: make(map[domain.AccountKey]struct{}, len(sorted)),
		staged: make(map[domain.AccountKey]*stagedRecord, len(sorted)),
	}
	for _, k := range sorted {
		tx.locked[k] = struct{}{}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return util.StorageFault("commit", err)
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *memTx) error {
	if len(tx.staged) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return util.StorageFault("commit", errStoreClosed)
	}
	if tx.epoch != s.epoch {
		return util.StorageFault("commit", errLedgerReset)
	}

	next := make(map[domain.AccountKey]*record, len(tx.staged))
	nextSeq := s.nextSeq
	for _, key := range tx.order {
		st := tx.staged[key]
		if !st.dirty {
			continue
		}
		acc := st.account
		if st.created {
			acc.Seq = nextSeq
			nextSeq++
		}
		hist := make([]domain.HistoryEntry, 0, len(st.base)+len(st.appended))
		hist = append(hist, st.base...)
		hist = append(hist, st.appended...)
		next[key] = &record{account: acc, history: hist}
	}
	if len(next) == 0 {
		return nil
	}

	if s.persister != nil {
		if err := s.persister.Persist(ctx, s.stateWithLocked(next, nextSeq)); err != nil {
			return util.StorageFault("persist ledger", err)
		}
	}
	for key, rec := range next {
		s.accounts[key] = rec
	}
	s.nextSeq = nextSeq
	return nil
}

func (s *Store) stateWithLocked(overlay map[domain.AccountKey]*record, nextSeq int64) State {
	merged := make(map[domain.AccountKey]*record, len(s.accounts)+len(overlay))
	for k, r := range s.accounts {
		merged[k] = r
	}
	for k, r := range overlay {
		merged[k] = r
	}
	st := State{NextSeq: nextSeq, Accounts: make([]AccountState, 0, len(merged))}
	for _, r := range merged {
		hist := make([]domain.HistoryEntry, len(r.history))
		copy(hist, r.history)
		st.Accounts = append(st.Accounts, AccountState{Account: r.account, History: hist})
	}
	sort.Slice(st.Accounts, func(i, j int) bool { return st.Accounts[i].Account.Seq < st.Accounts[j].Account.Seq })
	return st
}

// Reset implements repository.Store. It waits for units of work on existing
// accounts to finish; any that started earlier and commit later are rejected.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.RLock()
	keys := make([]domain.AccountKey, 0, len(s.accounts))
	for k := range s.accounts {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	release, err := s.locks.acquire(ctx, repository.SortedKeys(keys))
	if err != nil {
		return util.StorageFault("reset ledger", err)
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persister != nil {
		if err := s.persister.Persist(ctx, State{NextSeq: 1}); err != nil {
			return util.StorageFault("reset ledger", err)
		}
	}
	s.accounts = make(map[domain.AccountKey]*record)
	s.nextSeq = 1
	s.epoch++
	return nil
}

// Ping implements repository.Pinger.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return util.StorageFault("ping", errStoreClosed)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stagedRecord struct {
	account  domain.Account
	base     []domain.HistoryEntry // Committed history, read-only
	appended []domain.HistoryEntry
	created  bool
	dirty    bool
}

// memTx stages changes for the keys it holds locks for.
type memTx struct {
	store  *Store
	epoch  uint64
	locked map[domain.AccountKey]struct{}
	staged map[domain.AccountKey]*stagedRecord
	order  []domain.AccountKey
}

var _ repository.LedgerTx = (*memTx)(nil)

// load returns the working copy of key, or nil if the account does not exist.
func (tx *memTx) load(key domain.AccountKey) (*stagedRecord, error) {
	if _, ok := tx.locked[key]; !ok {
		return nil, fmt.Errorf("account %q is not locked by this unit of work", key)
	}
	if st, ok := tx.staged[key]; ok {
		return st, nil
	}
	tx.store.mu.RLock()
	rec, ok := tx.store.accounts[key]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	st := &stagedRecord{account: rec.account, base: rec.history}
	tx.staged[key] = st
	tx.order = append(tx.order, key)
	return st, nil
}

func (tx *memTx) GetAccount(_ context.Context, key domain.AccountKey) (*domain.Account, error) {
	st, err := tx.load(key)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("account %q: %w", key, util.ErrNotFound)
	}
	acc := st.account
	return &acc, nil
}

func (tx *memTx) ApplyDelta(_ context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	st, err := tx.load(key)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("account %q: %w", key, util.ErrNotFound)
	}
	bal := st.account.Balance
	if delta < 0 && bal+delta < 0 {
		return nil, fmt.Errorf("account %q has %d, needs %d: %w", key, bal, -delta, util.ErrInsufficientFunds)
	}
	if delta > 0 && bal > math.MaxInt64-delta {
		return nil, fmt.Errorf("account %q balance would overflow: %w", key, util.ErrInvalidAmount)
	}
	st.account.Balance = bal + delta
	st.account.UpdatedAt = tx.store.now()
	st.dirty = true
	acc := st.account
	return &acc, nil
}

func (tx *memTx) Append(_ context.Context, entry *domain.HistoryEntry) error {
	st, err := tx.load(entry.AccountKey)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("append history for %q: %w", entry.AccountKey, util.ErrNotFound)
	}
	e := *entry
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.store.now()
	}
	// Keep timestamps non-decreasing per account even if the wall clock steps back.
	if last, ok := st.last(); ok && e.Timestamp.Before(last.Timestamp) {
		e.Timestamp = last.Timestamp
	}
	st.appended = append(st.appended, e)
	st.dirty = true
	entry.ID = e.ID
	entry.Timestamp = e.Timestamp
	return nil
}

func (tx *memTx) LastEntryTime(_ context.Context, key domain.AccountKey) (time.Time, error) {
	st, err := tx.load(key)
	if err != nil {
		return time.Time{}, err
	}
	if st == nil {
		return time.Time{}, fmt.Errorf("account %q: %w", key, util.ErrNotFound)
	}
	last, _ := st.last()
	return last.Timestamp, nil
}

func (tx *memTx) createIfAbsent(key domain.AccountKey, initialBalance int64) (*domain.Account, error) {
	st, err := tx.load(key)
	if err != nil {
		return nil, err
	}
	if st != nil {
		acc := st.account
		return &acc, nil
	}
	acc := domain.NewAccount(key, initialBalance)
	tx.staged[key] = &stagedRecord{account: *acc, created: true, dirty: true}
	tx.order = append(tx.order, key)
	return acc, nil
}

func (st *stagedRecord) last() (domain.HistoryEntry, bool) {
	if n := len(st.appended); n > 0 {
		return st.appended[n-1], true
	}
	if n := len(st.base); n > 0 {
		return st.base[n-1], true
	}
	return domain.HistoryEntry{}, false
}

// Compile-time check: ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
var _ repository.Pinger = (*Store)(nil)
