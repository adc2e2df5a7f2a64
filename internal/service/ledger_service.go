// internal/service/ledger_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"campus-coin/internal/domain"
	"campus-coin/internal/metrics"
	"campus-coin/internal/notify"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

// Operation names used for metrics and logs.
const (
	OpLogin       = "login"
	OpQuestReward = "quest_reward"
	OpTransfer    = "transfer"
)

// LedgerService defines the ledger's business operations.
type LedgerService interface {
	Login(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	GetBalance(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	CreditQuestReward(ctx context.Context, req domain.CreditRequest) (*domain.Account, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (sender, receiver *domain.Account, err error)
	RankAccounts(ctx context.Context) ([]domain.Account, error)
	HistoryFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error)
}

// ledgerService implements the LedgerService interface.
type ledgerService struct {
	store          repository.Store
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	logger         *slog.Logger
	initialBalance int64
	now            func() time.Time
	newID          func() string
}

// NewLedgerService creates a new instance of LedgerService.
// notifier and m may be nil.
func NewLedgerService(
	store repository.Store,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
	initialBalance int64,
) LedgerService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ledgerService{
		store:          store,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		initialBalance: initialBalance,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// Login creates the account on first use and returns its current state.
func (s *ledgerService) Login(ctx context.Context, key domain.AccountKey) (acc *domain.Account, err error) {
	defer s.observe(OpLogin, time.Now(), 0, &err)

	if err := validKey(key); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	acc, err = s.store.CreateIfAbsent(ctx, key, s.initialBalance)
	if err != nil {
		return nil, fmt.Errorf("login: failed to open account %q: %w", key, err)
	}
	return acc, nil
}

// GetBalance returns the account's current state.
func (s *ledgerService) GetBalance(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	if err := validKey(key); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	acc, err := s.store.GetAccount(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return acc, nil
}

// CreditQuestReward adds a quest reward and records it in the account's history.
func (s *ledgerService) CreditQuestReward(ctx context.Context, req domain.CreditRequest) (acc *domain.Account, err error) {
	defer s.observe(OpQuestReward, time.Now(), req.Amount.Int64(), &err)

	if err := validKey(req.Account); err != nil {
		return nil, fmt.Errorf("quest reward: %w", err)
	}
	if !req.Amount.Valid() {
		return nil, fmt.Errorf("quest reward: amount %d: %w", req.Amount, util.ErrInvalidAmount)
	}

	err = s.store.Atomically(ctx, []domain.AccountKey{req.Account}, func(tx repository.LedgerTx) error {
		updated, err := tx.ApplyDelta(ctx, req.Account, req.Amount.Int64())
		if err != nil {
			return err
		}
		if err := tx.Append(ctx, domain.NewQuestRewardEntry(req.Account, req.Amount, s.now())); err != nil {
			return err
		}
		acc = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quest reward: failed to credit %q: %w", req.Account, err)
	}

	s.publish(ctx, domain.NewLedgerEvent(domain.LedgerEventQuestReward, req.Amount.Int64(), acc))
	return acc, nil
}

// Transfer moves coins between two distinct accounts. Both balance changes and
// both history entries commit together or not at all.
func (s *ledgerService) Transfer(ctx context.Context, req domain.TransferRequest) (sender, receiver *domain.Account, err error) {
	defer s.observe(OpTransfer, time.Now(), req.Amount.Int64(), &err)

	if err := validKey(req.From); err != nil {
		return nil, nil, fmt.Errorf("transfer: sender: %w", err)
	}
	if err := validKey(req.To); err != nil {
		return nil, nil, fmt.Errorf("transfer: receiver: %w", err)
	}
	if !req.Amount.Valid() {
		return nil, nil, fmt.Errorf("transfer: amount %d: %w", req.Amount, util.ErrInvalidAmount)
	}
	if req.From == req.To {
		return nil, nil, fmt.Errorf("transfer: %q: %w", req.From, util.ErrSelfTransfer)
	}

	amount := req.Amount.Int64()
	err = s.store.Atomically(ctx, []domain.AccountKey{req.From, req.To}, func(tx repository.LedgerTx) error {
		from, err := tx.GetAccount(ctx, req.From)
		if err != nil {
			return fmt.Errorf("sender: %w", err)
		}
		if _, err := tx.GetAccount(ctx, req.To); err != nil {
			return fmt.Errorf("receiver: %w", err)
		}
		if from.Balance < amount {
			return fmt.Errorf("%q has %d, needs %d: %w", req.From, from.Balance, amount, util.ErrInsufficientFunds)
		}

		if sender, err = tx.ApplyDelta(ctx, req.From, -amount); err != nil {
			return err
		}
		if receiver, err = tx.ApplyDelta(ctx, req.To, amount); err != nil {
			return err
		}

		// Both entries share one timestamp, so it must not precede either log's newest entry.
		at := s.now()
		for _, key := range []domain.AccountKey{req.From, req.To} {
			last, err := tx.LastEntryTime(ctx, key)
			if err != nil {
				return err
			}
			if at.Before(last) {
				at = last
			}
		}

		out, in := domain.NewTransferEntries(s.newID(), req.From, req.To, req.Amount, at)
		if err := tx.Append(ctx, out); err != nil {
			return err
		}
		return tx.Append(ctx, in)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: %w", err)
	}

	s.publish(ctx, domain.NewLedgerEvent(domain.LedgerEventTransfer, amount, sender, receiver))
	return sender, receiver, nil
}

// RankAccounts returns every account by balance, richest first. Equal balances
// keep insertion order.
func (s *ledgerService) RankAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Balance > accounts[j].Balance
	})
	return accounts, nil
}

// HistoryFor returns the account's history, newest first.
func (s *ledgerService) HistoryFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error) {
	if err := validKey(key); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if _, err := s.store.GetAccount(ctx, key); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	entries, err := s.store.ListFor(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}

// publish runs after commit with no ledger lock held. Delivery failures never
// undo or fail the committed operation.
func (s *ledgerService) publish(ctx context.Context, evt domain.LedgerEvent) {
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish ledger event", "event_id", evt.ID, "type", evt.Type, "error", err)
	}
}

func (s *ledgerService) observe(operation string, started time.Time, coins int64, errp *error) {
	s.metrics.ObserveOperation(operation, started, coins, *errp)
	if *errp != nil {
		s.logger.Debug("Ledger operation failed", "operation", operation, "code", util.ErrorCode(*errp), "error", *errp)
	}
}

func validKey(key domain.AccountKey) error {
	parsed, err := domain.ParseAccountKey(string(key))
	if err != nil {
		return err
	}
	if parsed != key {
		return fmt.Errorf("account key %q has surrounding whitespace: %w", key, util.ErrInvalidAccountKey)
	}
	return nil
}
