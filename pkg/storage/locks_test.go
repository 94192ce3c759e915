package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable_OwnerReentry(t *testing.T) {
	table := NewLockTable()
	ctx := context.Background()

	require.NoError(t, table.Acquire(ctx, "tenant:sess:task:label", "task_a"))
	require.NoError(t, table.Acquire(ctx, "tenant:sess:task:label", "task_a"))
	assert.True(t, table.Held("tenant:sess:task:label"))
}

func TestLockTable_CompetingOwnerTimesOut(t *testing.T) {
	table := NewLockTable()
	table.waitTimeout = 30 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, table.Acquire(ctx, "key", "task_a"))

	err := table.Acquire(ctx, "key", "task_b")
	assert.ErrorIs(t, err, ErrMemoryLockTimeout)
}

func TestLockTable_ExpiredLockIsStealable(t *testing.T) {
	table := NewLockTable()
	now := time.Now()
	table.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, table.Acquire(ctx, "key", "task_a"))

	// Advance past the TTL; the stale lock no longer blocks a new owner.
	now = now.Add(LockTTL + time.Second)
	require.NoError(t, table.Acquire(ctx, "key", "task_b"))
}

func TestLockTable_ReleaseUnblocksWaiter(t *testing.T) {
	table := NewLockTable()
	ctx := context.Background()

	require.NoError(t, table.Acquire(ctx, "key", "task_a"))
	table.Release("key")
	assert.False(t, table.Held("key"))

	require.NoError(t, table.Acquire(ctx, "key", "task_b"))
}

func TestLockTable_ContextCancellation(t *testing.T) {
	table := NewLockTable()
	require.NoError(t, table.Acquire(context.Background(), "key", "task_a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := table.Acquire(ctx, "key", "task_b")
	assert.ErrorIs(t, err, context.Canceled)
}
