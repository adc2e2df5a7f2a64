// internal/service/ledger_service_test.go
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

// MockStore is a mock implementation of repository.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockStore) CreateIfAbsent(ctx context.Context, key domain.AccountKey, initialBalance int64) (*domain.Account, error) {
	args := m.Called(ctx, key, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockStore) ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	args := m.Called(ctx, key, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockStore) Snapshot(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockStore) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) ListFor(ctx context.Context, key domain.AccountKey) ([]domain.HistoryEntry, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]domain.HistoryEntry), args.Error(1)
}

// Atomically hands the configured LedgerTx to fn; the second return value
// simulates the commit result.
func (m *MockStore) Atomically(ctx context.Context, keys []domain.AccountKey, fn func(tx repository.LedgerTx) error) error {
	args := m.Called(ctx, keys)
	if tx, ok := args.Get(0).(repository.LedgerTx); ok {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// MockLedgerTx is a mock implementation of repository.LedgerTx.
type MockLedgerTx struct {
	mock.Mock
}

func (m *MockLedgerTx) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockLedgerTx) ApplyDelta(ctx context.Context, key domain.AccountKey, delta int64) (*domain.Account, error) {
	args := m.Called(ctx, key, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockLedgerTx) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerTx) LastEntryTime(ctx context.Context, key domain.AccountKey) (time.Time, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, evt domain.LedgerEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func newMockedService(store *MockStore, notifier *MockNotifier) *ledgerService {
	svc := NewLedgerService(store, notifier, nil, util.DiscardLogger(), domain.DefaultInitialBalance).(*ledgerService)
	svc.newID = func() string { return "tr-1" }
	return svc
}

func entryOf(kind domain.HistoryKind, account domain.AccountKey) interface{} {
	return mock.MatchedBy(func(e *domain.HistoryEntry) bool {
		return e.Kind == kind && e.AccountKey == account && e.TransferID == "tr-1" && e.Amount == 500
	})
}

// TestTransfer tests the Transfer method of LedgerService.
func TestTransfer(t *testing.T) {
	req := domain.TransferRequest{From: "aoi", To: "ken", Amount: domain.Amount(500)}
	keys := []domain.AccountKey{"aoi", "ken"}

	t.Run("SuccessfulTransfer", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, keys).Return(mockTx, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("aoi")).Return(&domain.Account{Key: "aoi", Balance: 1000}, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("ken")).Return(&domain.Account{Key: "ken", Balance: 1000}, nil).Once()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("aoi"), int64(-500)).Return(&domain.Account{Key: "aoi", Balance: 500}, nil).Once()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("ken"), int64(500)).Return(&domain.Account{Key: "ken", Balance: 1500}, nil).Once()
		mockTx.On("LastEntryTime", ctx, mock.Anything).Return(time.Time{}, nil).Twice()
		mockTx.On("Append", ctx, entryOf(domain.HistoryKindTransferOut, "aoi")).Return(nil).Once()
		mockTx.On("Append", ctx, entryOf(domain.HistoryKindTransferIn, "ken")).Return(nil).Once()
		mockNotifier.On("Notify", ctx, mock.MatchedBy(func(evt domain.LedgerEvent) bool {
			return evt.Type == domain.LedgerEventTransfer && evt.Balances["aoi"] == 500 && evt.Balances["ken"] == 1500
		})).Return(nil).Once()

		sender, receiver, err := service.Transfer(ctx, req)

		assert.NoError(t, err)
		assert.Equal(t, int64(500), sender.Balance)
		assert.Equal(t, int64(1500), receiver.Balance)
		mock.AssertExpectationsForObjects(t, mockStore, mockTx, mockNotifier)
	})

	t.Run("SelfTransfer", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockNotifier := new(MockStore), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		_, _, err := service.Transfer(ctx, domain.TransferRequest{From: "aoi", To: "aoi", Amount: domain.Amount(10)})

		assert.ErrorIs(t, err, util.ErrSelfTransfer)
		assert.ErrorIs(t, err, util.ErrInvalidAmount)
		mockStore.AssertNotCalled(t, "Atomically", mock.Anything, mock.Anything)
		mockNotifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		mockStore, mockNotifier := new(MockStore), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		_, _, err := service.Transfer(context.Background(), domain.TransferRequest{From: "aoi", To: "ken"})

		assert.ErrorIs(t, err, util.ErrInvalidAmount)
		mockStore.AssertNotCalled(t, "Atomically", mock.Anything, mock.Anything)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, keys).Return(mockTx, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("aoi")).Return(&domain.Account{Key: "aoi", Balance: 499}, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("ken")).Return(&domain.Account{Key: "ken", Balance: 1000}, nil).Once()

		sender, receiver, err := service.Transfer(ctx, req)

		assert.ErrorIs(t, err, util.ErrInsufficientFunds)
		assert.Nil(t, sender)
		assert.Nil(t, receiver)
		mockTx.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
		mockNotifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		mock.AssertExpectationsForObjects(t, mockStore, mockTx)
	})

	t.Run("ReceiverNotFound", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, keys).Return(mockTx, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("aoi")).Return(&domain.Account{Key: "aoi", Balance: 1000}, nil).Once()
		mockTx.On("GetAccount", ctx, domain.AccountKey("ken")).Return(nil, util.ErrNotFound).Once()

		_, _, err := service.Transfer(ctx, req)

		assert.ErrorIs(t, err, util.ErrNotFound)
		assert.Contains(t, err.Error(), "receiver")
		mockTx.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CommitFailure", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		commitErr := util.StorageFault("persist ledger", errors.New("disk full"))
		mockStore.On("Atomically", ctx, keys).Return(mockTx, commitErr).Once()
		mockTx.On("GetAccount", ctx, mock.Anything).Return(&domain.Account{Balance: 1000}, nil).Twice()
		mockTx.On("ApplyDelta", ctx, mock.Anything, mock.Anything).Return(&domain.Account{}, nil).Twice()
		mockTx.On("LastEntryTime", ctx, mock.Anything).Return(time.Time{}, nil).Twice()
		mockTx.On("Append", ctx, mock.Anything).Return(nil).Twice()

		sender, receiver, err := service.Transfer(ctx, req)

		assert.ErrorIs(t, err, util.ErrStorageFault)
		assert.Nil(t, sender)
		assert.Nil(t, receiver)
		mockNotifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("NotifierFailureIsNotReturned", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, keys).Return(mockTx, nil).Once()
		mockTx.On("GetAccount", ctx, mock.Anything).Return(&domain.Account{Balance: 1000}, nil).Twice()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("aoi"), int64(-500)).Return(&domain.Account{Key: "aoi", Balance: 500}, nil).Once()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("ken"), int64(500)).Return(&domain.Account{Key: "ken", Balance: 1500}, nil).Once()
		mockTx.On("LastEntryTime", ctx, mock.Anything).Return(time.Time{}, nil).Twice()
		mockTx.On("Append", ctx, mock.Anything).Return(nil).Twice()
		mockNotifier.On("Notify", ctx, mock.Anything).Return(errors.New("no subscribers reachable")).Once()

		_, _, err := service.Transfer(ctx, req)

		assert.NoError(t, err)
		mockNotifier.AssertExpectations(t)
	})

	t.Run("PairTimestampFollowsNewestLog", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)
		now := time.Date(2026, 5, 1, 11, 59, 59, 0, time.UTC)
		receiverLast := now.Add(time.Second)
		service.now = func() time.Time { return now }

		var stamps []time.Time
		mockStore.On("Atomically", ctx, keys).Return(mockTx, nil).Once()
		mockTx.On("GetAccount", ctx, mock.Anything).Return(&domain.Account{Balance: 1000}, nil).Twice()
		mockTx.On("ApplyDelta", ctx, mock.Anything, mock.Anything).Return(&domain.Account{}, nil).Twice()
		mockTx.On("LastEntryTime", ctx, domain.AccountKey("aoi")).Return(now.Add(-time.Hour), nil).Once()
		mockTx.On("LastEntryTime", ctx, domain.AccountKey("ken")).Return(receiverLast, nil).Once()
		mockTx.On("Append", ctx, mock.Anything).Run(func(args mock.Arguments) {
			stamps = append(stamps, args.Get(1).(*domain.HistoryEntry).Timestamp)
		}).Return(nil).Twice()
		mockNotifier.On("Notify", ctx, mock.Anything).Return(nil).Once()

		_, _, err := service.Transfer(ctx, req)

		assert.NoError(t, err)
		assert.Equal(t, []time.Time{receiverLast, receiverLast}, stamps)
		mock.AssertExpectationsForObjects(t, mockStore, mockTx)
	})
}

// TestCreditQuestReward tests the CreditQuestReward method of LedgerService.
func TestCreditQuestReward(t *testing.T) {
	t.Run("SuccessfulCredit", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, []domain.AccountKey{"aoi"}).Return(mockTx, nil).Once()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("aoi"), int64(200)).Return(&domain.Account{Key: "aoi", Balance: 1200}, nil).Once()
		mockTx.On("Append", ctx, mock.MatchedBy(func(e *domain.HistoryEntry) bool {
			return e.Kind == domain.HistoryKindQuestReward && e.Amount == 200 && e.Counterparty == nil
		})).Return(nil).Once()
		mockNotifier.On("Notify", ctx, mock.AnythingOfType("domain.LedgerEvent")).Return(nil).Once()

		acc, err := service.CreditQuestReward(ctx, domain.CreditRequest{Account: "aoi", Amount: domain.Amount(200)})

		assert.NoError(t, err)
		assert.Equal(t, int64(1200), acc.Balance)
		mock.AssertExpectationsForObjects(t, mockStore, mockTx, mockNotifier)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		ctx := context.Background()
		mockStore, mockTx, mockNotifier := new(MockStore), new(MockLedgerTx), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		mockStore.On("Atomically", ctx, []domain.AccountKey{"ghost"}).Return(mockTx, nil).Once()
		mockTx.On("ApplyDelta", ctx, domain.AccountKey("ghost"), int64(200)).Return(nil, util.ErrNotFound).Once()

		_, err := service.CreditQuestReward(ctx, domain.CreditRequest{Account: "ghost", Amount: domain.Amount(200)})

		assert.ErrorIs(t, err, util.ErrNotFound)
		mockTx.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		mockNotifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		mockStore, mockNotifier := new(MockStore), new(MockNotifier)
		service := newMockedService(mockStore, mockNotifier)

		_, err := service.CreditQuestReward(context.Background(), domain.CreditRequest{Account: " aoi ", Amount: domain.Amount(1)})

		assert.ErrorIs(t, err, util.ErrInvalidAccountKey)
		mockStore.AssertNotCalled(t, "Atomically", mock.Anything, mock.Anything)
	})
}

// TestLogin tests the Login method of LedgerService.
func TestLogin(t *testing.T) {
	ctx := context.Background()
	mockStore := new(MockStore)
	service := NewLedgerService(mockStore, nil, nil, util.DiscardLogger(), 750)

	mockStore.On("CreateIfAbsent", ctx, domain.AccountKey("mio"), int64(750)).Return(&domain.Account{Key: "mio", Balance: 750}, nil).Once()

	acc, err := service.Login(ctx, "mio")
	assert.NoError(t, err)
	assert.Equal(t, int64(750), acc.Balance)

	_, err = service.Login(ctx, "")
	assert.ErrorIs(t, err, util.ErrInvalidAccountKey)
	mockStore.AssertExpectations(t)
}

// TestHistoryForUnknownAccount tests that history of a missing account is NotFound, not empty.
func TestHistoryForUnknownAccount(t *testing.T) {
	ctx := context.Background()
	mockStore := new(MockStore)
	service := NewLedgerService(mockStore, nil, nil, util.DiscardLogger(), 1000)

	mockStore.On("GetAccount", ctx, domain.AccountKey("nobody")).Return(nil, util.ErrNotFound).Once()

	_, err := service.HistoryFor(ctx, "nobody")
	assert.ErrorIs(t, err, util.ErrNotFound)
	mockStore.AssertNotCalled(t, "ListFor", mock.Anything, mock.Anything)
}

// TestRankAccountsStableOrder tests that ties keep insertion order.
func TestRankAccountsStableOrder(t *testing.T) {
	ctx := context.Background()
	mockStore := new(MockStore)
	service := NewLedgerService(mockStore, nil, nil, util.DiscardLogger(), 1000)

	mockStore.On("Snapshot", ctx).Return([]domain.Account{
		{Key: "first", Balance: 1000, Seq: 1},
		{Key: "rich", Balance: 1500, Seq: 2},
		{Key: "second", Balance: 1000, Seq: 3},
		{Key: "poor", Balance: 0, Seq: 4},
	}, nil).Once()

	ranked, err := service.RankAccounts(ctx)
	assert.NoError(t, err)
	var keys []domain.AccountKey
	for _, a := range ranked {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []domain.AccountKey{"rich", "first", "second", "poor"}, keys)
}
