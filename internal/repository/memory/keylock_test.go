// internal/repository/memory/keylock_test.go
package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-coin/internal/domain"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	l := newKeyLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.acquire(ctx, []domain.AccountKey{"k"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.size(), "entries are dropped once unused")
}

func TestKeyLockerCancelReleasesPartialAcquire(t *testing.T) {
	l := newKeyLocker()
	release, err := l.acquire(context.Background(), []domain.AccountKey{"b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, []domain.AccountKey{"a", "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// "a" must have been released again.
	relA, err := l.acquire(context.Background(), []domain.AccountKey{"a"})
	require.NoError(t, err)
	relA()
	release()
	assert.Equal(t, 0, l.size())
}
