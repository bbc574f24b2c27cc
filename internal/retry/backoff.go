package retry

import (
	"math/rand/v2"
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// JitterFunc returns a random duration in [0, base).
type JitterFunc func(base time.Duration) time.Duration

// RandomJitter draws uniformly from [0, base).
func RandomJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)))
}

// NoJitter is used where a deterministic schedule is wanted.
func NoJitter(time.Duration) time.Duration {
	return 0
}

// Backoff returns the delay before the retry following the failures-th
// transient failure: min(base*2^(failures-1), max) plus jitter in [0, base).
func Backoff(policy domain.RetryPolicy, failures int, jitter JitterFunc) time.Duration {
	base, ceiling := policy.BaseDelay(), policy.MaxDelay()
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures && delay < ceiling; i++ {
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}
	if jitter != nil {
		delay += jitter(base)
	}
	return delay
}
