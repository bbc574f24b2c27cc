package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "k", time.Minute, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, l.Release(ctx, lease))
	_, err = l.Acquire(ctx, "k", time.Minute, 0)
	assert.NoError(t, err)
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	_, err := l.Acquire(ctx, "a", time.Minute, 0)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "b", time.Minute, 0)
	assert.NoError(t, err)
}

func TestExpiredLeaseCanBeTakenAndIsLost(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker().WithClock(func() time.Time { return now })

	first, err := l.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	second, err := l.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	_, err = l.Resume(ctx, first, time.Second)
	assert.ErrorIs(t, err, ErrLeaseLost)

	// Releasing a stale lease must not free the new holder.
	require.NoError(t, l.Release(ctx, first))
	_, err = l.Resume(ctx, second, time.Second)
	assert.NoError(t, err)
}

func TestResumeExtendsLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker().WithClock(func() time.Time { return now })

	lease, err := l.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	now = now.Add(900 * time.Millisecond)
	lease, err = l.Resume(ctx, lease, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Second), lease.ExpiresAt)

	now = now.Add(5 * time.Second)
	_, err = l.Acquire(ctx, "k", time.Second, 0)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(ctx, "shared", time.Minute, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Release(ctx, lease))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}
