package retry

import (
	"context"
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// Outcome is what happens to an event after one attempt.
type Outcome int

const (
	Succeeded Outcome = iota
	Retry
	Failed
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Retry:
		return "retry"
	case Failed:
		return "failed"
	}
	return "dead_letter"
}

// Decision is the result of one attempt.
type Decision struct {
	Outcome Outcome
	Class   Class
	// Delay before the rescheduled attempt; zero unless Outcome is Retry.
	Delay time.Duration
	State domain.RetryState
	Err   error
}

// maxUnexpected is how many unclassified failures an event may survive.
const maxUnexpected = 1

// Manager wraps ticketing calls. It never sleeps: a transient failure yields a
// Retry decision that the caller schedules as new work.
type Manager struct {
	jitter JitterFunc
	now    func() time.Time
}

// NewManager returns a manager using random jitter and the wall clock.
func NewManager() *Manager {
	return &Manager{jitter: RandomJitter, now: time.Now}
}

// WithJitter replaces the jitter source.
func (m *Manager) WithJitter(j JitterFunc) *Manager {
	m.jitter = j
	return m
}

// WithClock replaces the clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Do performs a single attempt of call under the policy's call timeout and decides what follows.
func (m *Manager) Do(ctx context.Context, policy domain.RetryPolicy, state domain.RetryState, call func(ctx context.Context) error) Decision {
	callCtx, cancel := context.WithTimeout(ctx, policy.CallTimeout())
	defer cancel()
	return m.Decide(policy, state, call(callCtx))
}

// Decide applies the retry policy to the error of an attempt.
func (m *Manager) Decide(policy domain.RetryPolicy, state domain.RetryState, err error) Decision {
	class := Classify(err)
	switch class {
	case ClassNone:
		return Decision{Outcome: Succeeded, Class: class, State: domain.RetryState{Attempt: state.Attempt}}
	case ClassPermanent, ClassTerminal:
		state.LastError = err.Error()
		return Decision{Outcome: Failed, Class: class, State: state, Err: err}
	case ClassUnexpected:
		state.Unexpected++
		if state.Unexpected > maxUnexpected {
			state.Attempt++
			return m.deadLetter(class, state, err)
		}
	}

	state.Attempt++
	state.LastError = err.Error()
	if state.Attempt >= policy.MaxAttempts {
		return m.deadLetter(class, state, err)
	}
	delay := Backoff(policy, state.Attempt, m.jitter)
	state.NextRetryAt = m.now().Add(delay)
	return Decision{Outcome: Retry, Class: class, Delay: delay, State: state, Err: err}
}

func (m *Manager) deadLetter(class Class, state domain.RetryState, err error) Decision {
	state.LastError = err.Error()
	state.DeadLetter = true
	state.NextRetryAt = time.Time{}
	return Decision{Outcome: DeadLettered, Class: class, State: state, Err: err}
}
