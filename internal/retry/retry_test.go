package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/lock"
	"github.com/spec-kit/alertbridge/internal/resolver"
	"github.com/spec-kit/alertbridge/internal/ticketing"
)

var transient = &ticketing.TransientError{Op: "create ticket", StatusCode: 503, Err: errors.New("Service Unavailable")}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"transient", transient, ClassTransient},
		{"wrapped transient", fmt.Errorf("create: %w", transient), ClassTransient},
		{"lock timeout", fmt.Errorf("acquire: %w", lock.ErrLockTimeout), ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"permanent", &ticketing.PermanentError{Message: "board is required"}, ClassPermanent},
		{"resolution", &resolver.ResolutionError{Reason: "malformed JSON"}, ClassTerminal},
		{"other", errors.New("nil map"), ClassUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoffSchedule(t *testing.T) {
	policy := domain.RetryPolicy{MaxAttempts: 10, BaseDelaySeconds: 1, MaxDelaySeconds: 8}
	want := []time.Duration{1, 2, 4, 8, 8, 8}
	for i, w := range want {
		assert.Equal(t, w*time.Second, Backoff(policy, i+1, NoJitter), "failure %d", i+1)
	}
}

func TestBackoffJitterStaysBelowBase(t *testing.T) {
	policy := domain.RetryPolicy{BaseDelaySeconds: 1, MaxDelaySeconds: 8}
	for n := 1; n <= 8; n++ {
		for i := 0; i < 50; i++ {
			d := Backoff(policy, n, RandomJitter)
			floor := Backoff(policy, n, NoJitter)
			assert.GreaterOrEqual(t, d, floor)
			assert.Less(t, d, floor+time.Second)
		}
	}
}

func TestBackoffLargeAttemptDoesNotOverflow(t *testing.T) {
	policy := domain.RetryPolicy{BaseDelaySeconds: 1, MaxDelaySeconds: 60}
	assert.Equal(t, 60*time.Second, Backoff(policy, 500, NoJitter))
}

func TestDecideTransientThenDeadLetter(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	m := NewManager().WithJitter(NoJitter).WithClock(func() time.Time { return now })
	policy := domain.RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 1, MaxDelaySeconds: 8}

	state := domain.RetryState{}
	d := m.Decide(policy, state, transient)
	require.Equal(t, Retry, d.Outcome)
	assert.Equal(t, time.Second, d.Delay)
	assert.Equal(t, 1, d.State.Attempt)
	assert.Equal(t, now.Add(time.Second), d.State.NextRetryAt)

	d = m.Decide(policy, d.State, transient)
	require.Equal(t, Retry, d.Outcome)
	assert.Equal(t, 2*time.Second, d.Delay)

	d = m.Decide(policy, d.State, transient)
	require.Equal(t, DeadLettered, d.Outcome)
	assert.True(t, d.State.DeadLetter)
	assert.Equal(t, 3, d.State.Attempt)
	assert.Equal(t, transient.Error(), d.State.LastError)
}

func TestDecidePermanentBypassesRetry(t *testing.T) {
	m := NewManager()
	perm := &ticketing.PermanentError{StatusCode: 400, Message: `{"message":"company not found"}`}
	d := m.Decide(domain.RetryPolicy{MaxAttempts: 5, BaseDelaySeconds: 1, MaxDelaySeconds: 8}, domain.RetryState{}, perm)
	assert.Equal(t, Failed, d.Outcome)
	assert.Equal(t, 0, d.State.Attempt)
	assert.Equal(t, `{"message":"company not found"}`, d.State.LastError)
}

func TestDecideUnexpectedOnceThenDeadLetter(t *testing.T) {
	m := NewManager().WithJitter(NoJitter)
	policy := domain.RetryPolicy{MaxAttempts: 5, BaseDelaySeconds: 1, MaxDelaySeconds: 8}
	boom := errors.New("boom")

	d := m.Decide(policy, domain.RetryState{}, boom)
	require.Equal(t, Retry, d.Outcome)
	assert.Equal(t, 1, d.State.Unexpected)

	d = m.Decide(policy, d.State, boom)
	assert.Equal(t, DeadLettered, d.Outcome)
	assert.Equal(t, ClassUnexpected, d.Class)
}

func TestDecideSuccessClearsState(t *testing.T) {
	m := NewManager()
	d := m.Decide(domain.RetryPolicy{MaxAttempts: 5}, domain.RetryState{Attempt: 2, LastError: "x", LeaseToken: "t"}, nil)
	assert.Equal(t, Succeeded, d.Outcome)
	assert.Equal(t, 2, d.State.Attempt)
	assert.Empty(t, d.State.LastError)
	assert.Empty(t, d.State.LeaseToken)
}

func TestDoAppliesCallTimeout(t *testing.T) {
	m := NewManager().WithJitter(NoJitter)
	policy := domain.RetryPolicy{MaxAttempts: 5, BaseDelaySeconds: 1, MaxDelaySeconds: 8, CallTimeoutSeconds: 0.02}

	d := m.Do(context.Background(), policy, domain.RetryState{}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, Retry, d.Outcome)
	assert.Equal(t, ClassTransient, d.Class)
}
