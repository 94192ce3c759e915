package storage

import (
	"context"
	"sync"
	"time"
)

const (
	// LockWaitTimeout bounds how long a writer waits for a held key.
	LockWaitTimeout = 5 * time.Second
	// LockTTL is the stale-lock expiry.
	LockTTL = 30 * time.Second

	lockPollInterval = 10 * time.Millisecond
)

type heldLock struct {
	owner     string
	expiresAt time.Time
}

// LockTable serializes writes per namespaced key. Acquire is re-entrant for
// the owning task; competing writers poll until the holder releases, the lock
// TTL expires, or the wait window runs out.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]heldLock

	waitTimeout time.Duration
	ttl         time.Duration
	now         func() time.Time
}

func NewLockTable() *LockTable {
	return &LockTable{
		locks:       make(map[string]heldLock),
		waitTimeout: LockWaitTimeout,
		ttl:         LockTTL,
		now:         time.Now,
	}
}

// Acquire takes the write lock on key for owner. Returns
// ErrMemoryLockTimeout when the wait window elapses.
func (t *LockTable) Acquire(ctx context.Context, key, owner string) error {
	deadline := t.now().Add(t.waitTimeout)
	for {
		if t.tryAcquire(key, owner) {
			return nil
		}
		if t.now().After(deadline) {
			return ErrMemoryLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (t *LockTable) tryAcquire(key, owner string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	held, ok := t.locks[key]
	if ok && held.owner != owner && now.Before(held.expiresAt) {
		return false
	}
	t.locks[key] = heldLock{owner: owner, expiresAt: now.Add(t.ttl)}
	return true
}

// Release drops the lock on key regardless of owner.
func (t *LockTable) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, key)
}

// Held reports whether key is currently locked and unexpired.
func (t *LockTable) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	held, ok := t.locks[key]
	return ok && t.now().Before(held.expiresAt)
}
