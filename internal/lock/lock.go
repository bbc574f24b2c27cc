// Package lock provides the named per-key lease that serializes reconciliation
// of events sharing a dedup key.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockTimeout is returned when the bounded wait elapses before the key frees up.
	ErrLockTimeout = errors.New("lock wait timed out")
	// ErrLeaseLost is returned when a lease expired or was taken over by another holder.
	ErrLeaseLost = errors.New("lease no longer held")
)

// DefaultPollInterval is how often a contended key is re-tried.
const DefaultPollInterval = 10 * time.Millisecond

// Lease is a held lock. The token proves ownership on extend and release.
type Lease struct {
	Key       string    `json:"key"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Locker hands out exclusive leases on named keys.
type Locker interface {
	// Acquire waits at most wait for key, then holds it for ttl.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error)
	// Resume re-claims a lease carried across a retry and extends it by ttl.
	Resume(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error)
	// Release frees the key if the lease still holds it.
	Release(ctx context.Context, lease Lease) error
}

func newToken() string {
	return uuid.NewString()
}

// poll calls try until it succeeds, fails, the wait elapses or ctx is done.
func poll(ctx context.Context, wait, interval time.Duration, try func() (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockTimeout
		}
		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
