// internal/repository/storetest/storetest.go

// Package storetest holds the behaviour every repository.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-coin/internal/domain"
	"campus-coin/internal/repository"
	"campus-coin/internal/util"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) repository.Store

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateIfAbsentIsIdempotent", func(t *testing.T) { testCreateIfAbsent(t, open(t, newStore)) })
	t.Run("GetUnknownAccount", func(t *testing.T) { testGetUnknown(t, open(t, newStore)) })
	t.Run("ApplyDelta", func(t *testing.T) { testApplyDelta(t, open(t, newStore)) })
	t.Run("SnapshotInsertionOrder", func(t *testing.T) { testSnapshotOrder(t, open(t, newStore)) })
	t.Run("HistoryNewestFirst", func(t *testing.T) { testHistoryOrder(t, open(t, newStore)) })
	t.Run("AtomicallyRollsBack", func(t *testing.T) { testAtomicallyRollback(t, open(t, newStore)) })
	t.Run("AtomicallyCommitsTogether", func(t *testing.T) { testAtomicallyCommit(t, open(t, newStore)) })
	t.Run("ConcurrentTransfersLoseNoUpdates", func(t *testing.T) { testConcurrentTransfers(t, open(t, newStore)) })
	t.Run("LastEntryTime", func(t *testing.T) { testLastEntryTime(t, open(t, newStore)) })
	t.Run("Reset", func(t *testing.T) { testReset(t, open(t, newStore)) })
}

func open(t *testing.T, newStore Factory) repository.Store {
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCreateIfAbsent(t *testing.T, s repository.Store) {
	ctx := context.Background()

	first, err := s.CreateIfAbsent(ctx, "aoi", 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKey("aoi"), first.Key)
	assert.Equal(t, int64(1000), first.Balance)

	_, err = s.ApplyDelta(ctx, "aoi", 250)
	require.NoError(t, err)

	again, err := s.CreateIfAbsent(ctx, "aoi", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), again.Balance, "second create must not reset the balance")
	assert.Equal(t, first.Seq, again.Seq)
}

func testGetUnknown(t *testing.T, s repository.Store) {
	_, err := s.GetAccount(context.Background(), "nobody")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func testApplyDelta(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "ken", 100)
	require.NoError(t, err)

	acc, err := s.ApplyDelta(ctx, "ken", -40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), acc.Balance)

	_, err = s.ApplyDelta(ctx, "ken", -61)
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)

	acc, err = s.ApplyDelta(ctx, "ken", -60)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance, "draining to exactly zero is allowed")

	_, err = s.ApplyDelta(ctx, "ghost", 10)
	assert.ErrorIs(t, err, util.ErrNotFound)

	got, err := s.GetAccount(ctx, "ken")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func testSnapshotOrder(t *testing.T, s repository.Store) {
	ctx := context.Background()
	for _, k := range []domain.AccountKey{"zen", "ami", "mio"} {
		_, err := s.CreateIfAbsent(ctx, k, 1000)
		require.NoError(t, err)
	}
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, domain.AccountKey("zen"), snap[0].Key)
	assert.Equal(t, domain.AccountKey("ami"), snap[1].Key)
	assert.Equal(t, domain.AccountKey("mio"), snap[2].Key)
	assert.Less(t, snap[0].Seq, snap[1].Seq)
	assert.Less(t, snap[1].Seq, snap[2].Seq)
}

func testHistoryOrder(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "rin", 1000)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, amt := range []int64{10, 20, 30} {
		e := domain.NewQuestRewardEntry("rin", domain.Amount(amt), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Append(ctx, e))
		assert.NotEmpty(t, e.ID)
	}
	// Same timestamp as the previous entry: insertion order breaks the tie.
	require.NoError(t, s.Append(ctx, domain.NewQuestRewardEntry("rin", domain.Amount(40), base.Add(2*time.Second))))

	hist, err := s.ListFor(ctx, "rin")
	require.NoError(t, err)
	require.Len(t, hist, 4)
	amounts := []int64{hist[0].Amount, hist[1].Amount, hist[2].Amount, hist[3].Amount}
	assert.Equal(t, []int64{40, 30, 20, 10}, amounts)
	assert.Equal(t, domain.HistoryKindQuestReward, hist[0].Kind)
	assert.Nil(t, hist[0].Counterparty)

	again, err := s.ListFor(ctx, "rin")
	require.NoError(t, err)
	assert.Equal(t, hist, again, "listing is restartable")

	empty, err := s.ListFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAtomicallyRollback(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "a", 1000)
	require.NoError(t, err)
	_, err = s.CreateIfAbsent(ctx, "b", 1000)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomically(ctx, []domain.AccountKey{"a", "b"}, func(tx repository.LedgerTx) error {
		if _, err := tx.ApplyDelta(ctx, "a", -300); err != nil {
			return err
		}
		if err := tx.Append(ctx, domain.NewQuestRewardEntry("a", domain.Amount(1), time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// A failing second step also undoes the first.
	err = s.Atomically(ctx, []domain.AccountKey{"a", "b"}, func(tx repository.LedgerTx) error {
		if _, err := tx.ApplyDelta(ctx, "a", 500); err != nil {
			return err
		}
		_, err := tx.ApplyDelta(ctx, "b", -5000)
		return err
	})
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)

	a, err := s.GetAccount(ctx, "a")
	require.NoError(t, err)
	b, err := s.GetAccount(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a.Balance)
	assert.Equal(t, int64(1000), b.Balance)

	hist, err := s.ListFor(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func testAtomicallyCommit(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "x", 1000)
	require.NoError(t, err)
	_, err = s.CreateIfAbsent(ctx, "y", 1000)
	require.NoError(t, err)

	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	err = s.Atomically(ctx, []domain.AccountKey{"y", "x"}, func(tx repository.LedgerTx) error {
		x, err := tx.GetAccount(ctx, "x")
		if err != nil {
			return err
		}
		require.Equal(t, int64(1000), x.Balance)
		if _, err := tx.ApplyDelta(ctx, "x", -500); err != nil {
			return err
		}
		staged, err := tx.GetAccount(ctx, "x")
		if err != nil {
			return err
		}
		require.Equal(t, int64(500), staged.Balance, "reads see staged changes")
		if _, err := tx.ApplyDelta(ctx, "y", 500); err != nil {
			return err
		}
		out, in := domain.NewTransferEntries("t-1", "x", "y", domain.Amount(500), at)
		if err := tx.Append(ctx, out); err != nil {
			return err
		}
		return tx.Append(ctx, in)
	})
	require.NoError(t, err)

	x, err := s.GetAccount(ctx, "x")
	require.NoError(t, err)
	y, err := s.GetAccount(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(500), x.Balance)
	assert.Equal(t, int64(1500), y.Balance)

	xh, err := s.ListFor(ctx, "x")
	require.NoError(t, err)
	yh, err := s.ListFor(ctx, "y")
	require.NoError(t, err)
	require.Len(t, xh, 1)
	require.Len(t, yh, 1)
	assert.Equal(t, domain.HistoryKindTransferOut, xh[0].Kind)
	assert.Equal(t, domain.HistoryKindTransferIn, yh[0].Kind)
	require.NotNil(t, xh[0].Counterparty)
	assert.Equal(t, domain.AccountKey("y"), *xh[0].Counterparty)
	assert.Equal(t, "t-1", yh[0].TransferID)
	assert.True(t, xh[0].Timestamp.Equal(yh[0].Timestamp))
}

func testConcurrentTransfers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "p", 1000)
	require.NoError(t, err)
	_, err = s.CreateIfAbsent(ctx, "q", 1000)
	require.NoError(t, err)

	const rounds = 40
	transfer := func(from, to domain.AccountKey, amt int64) error {
		return s.Atomically(ctx, []domain.AccountKey{from, to}, func(tx repository.LedgerTx) error {
			if _, err := tx.ApplyDelta(ctx, from, -amt); err != nil {
				return err
			}
			_, err := tx.ApplyDelta(ctx, to, amt)
			return err
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); errs <- transfer("p", "q", 5) }()
		go func() { defer wg.Done(); errs <- transfer("q", "p", 5) }()
		go func() {
			defer wg.Done()
			_, err := s.ApplyDelta(ctx, "p", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := s.GetAccount(ctx, "p")
	require.NoError(t, err)
	q, err := s.GetAccount(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(1000+rounds), p.Balance)
	assert.Equal(t, int64(1000), q.Balance)
}

func testLastEntryTime(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "sora", 1000)
	require.NoError(t, err)

	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	err = s.Atomically(ctx, []domain.AccountKey{"sora", "ghost"}, func(tx repository.LedgerTx) error {
		last, err := tx.LastEntryTime(ctx, "sora")
		require.NoError(t, err)
		assert.True(t, last.IsZero(), "no entries yet")

		require.NoError(t, tx.Append(ctx, domain.NewQuestRewardEntry("sora", domain.Amount(3), at)))
		last, err = tx.LastEntryTime(ctx, "sora")
		require.NoError(t, err)
		assert.True(t, at.Equal(last), "staged entries count, got %s", last)

		_, err = tx.LastEntryTime(ctx, "ghost")
		assert.ErrorIs(t, err, util.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func testReset(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, "gone", 1000)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, domain.NewQuestRewardEntry("gone", domain.Amount(5), time.Now().UTC())))

	require.NoError(t, s.Reset(ctx))

	_, err = s.GetAccount(ctx, "gone")
	assert.ErrorIs(t, err, util.ErrNotFound)
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	acc, err := s.CreateIfAbsent(ctx, "gone", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acc.Balance)
	hist, err := s.ListFor(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, hist)
}
