package lock

import (
	"context"
	"sync"
	"time"
)

type heldLock struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu       sync.Mutex
	held     map[string]heldLock
	now      func() time.Time
	interval time.Duration
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:     make(map[string]heldLock),
		now:      time.Now,
		interval: DefaultPollInterval,
	}
}

// WithClock overrides the clock used for expiry; tests only.
func (l *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	l.now = now
	return l
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	lease := Lease{Key: key, Token: newToken()}
	err := poll(ctx, wait, l.interval, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.now()
		if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
			return false, nil
		}
		lease.ExpiresAt = now.Add(ttl)
		l.held[key] = heldLock{token: lease.Token, expiresAt: lease.ExpiresAt}
		return true, nil
	})
	if err != nil {
		return Lease{}, err
	}
	return lease, nil
}

func (l *MemoryLocker) Resume(_ context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	h, ok := l.held[lease.Key]
	if !ok || h.token != lease.Token || !now.Before(h.expiresAt) {
		return Lease{}, ErrLeaseLost
	}
	lease.ExpiresAt = now.Add(ttl)
	l.held[lease.Key] = heldLock{token: lease.Token, expiresAt: lease.ExpiresAt}
	return lease, nil
}

func (l *MemoryLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[lease.Key]; ok && h.token == lease.Token {
		delete(l.held, lease.Key)
	}
	return nil
}
