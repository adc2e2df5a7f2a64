// internal/repository/memory/keylock.go
package memory

import (
	"context"
	"sync"

	"campus-coin/internal/domain"
)

// keyLocker hands out one exclusive lock per account key. Locks are channels so
// that waiting for them honours context cancellation.
type keyLocker struct {
	mu    sync.Mutex
	locks map[domain.AccountKey]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int // goroutines holding or waiting; the entry is dropped at zero
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[domain.AccountKey]*keyLock)}
}

// acquire locks keys in the order given. Callers pass them sorted.
func (l *keyLocker) acquire(ctx context.Context, keys []domain.AccountKey) (func(), error) {
	held := make([]domain.AccountKey, 0, len(keys))
	for _, key := range keys {
		kl := l.ref(key)
		select {
		case kl.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			l.release(held)
			return nil, ctx.Err()
		}
	}
	return func() { l.release(held) }, nil
}

func (l *keyLocker) release(keys []domain.AccountKey) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		kl := l.locks[keys[i]]
		l.mu.Unlock()
		<-kl.ch
		l.unref(keys[i])
	}
}

func (l *keyLocker) ref(key domain.AccountKey) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *keyLocker) unref(key domain.AccountKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of live lock entries.
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
