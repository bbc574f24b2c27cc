package reconcile

import (
	"fmt"
	"time"
)

// LockTimeoutError reports that the per-key lock could not be taken within the wait.
type LockTimeoutError struct {
	Key  string
	Wait time.Duration
	Err  error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired within %s: %v", e.Key, e.Wait, e.Err)
}

func (e *LockTimeoutError) Unwrap() error {
	return e.Err
}
