// Package reconcile decides and performs the ticket action for an event while
// holding the lease on its dedup key.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/lock"
	"github.com/spec-kit/alertbridge/internal/retry"
	"github.com/spec-kit/alertbridge/internal/ticketing"
)

// Input is everything reconciliation needs about one event attempt.
type Input struct {
	Event   domain.Event
	Config  *domain.EndpointConfig
	Trigger domain.TriggerKind
	Key     domain.DedupKey
	Fields  domain.TicketFields
	// Message is the alert text quoted in update and resolution notes.
	Message      string
	MatchedRules []string
	Retry        domain.RetryState
}

// Result is the outcome of one reconciliation attempt.
type Result struct {
	State    domain.State
	Action   domain.Action
	TicketID string
	Reason   string
	// Retry is the state to carry into the rescheduled attempt when State is RETRYING,
	// or the final retry state otherwise.
	Retry domain.RetryState
	Delay time.Duration
	Class retry.Class
	Err   error
}

// Machine runs the reconciliation state machine.
type Machine struct {
	adapter   ticketing.Adapter
	locker    lock.Locker
	retries   *retry.Manager
	lockWait  time.Duration
	lockSlack time.Duration
	logger    *zap.Logger
}

// NewMachine wires the state machine. lockWait bounds the wait for a busy key;
// lockSlack is added to the lease TTL on top of the longest backoff and call timeout.
func NewMachine(adapter ticketing.Adapter, locker lock.Locker, retries *retry.Manager, lockWait, lockSlack time.Duration, logger *zap.Logger) *Machine {
	return &Machine{
		adapter:   adapter,
		locker:    locker,
		retries:   retries,
		lockWait:  lockWait,
		lockSlack: lockSlack,
		logger:    logger,
	}
}

// leaseTTL keeps a lease alive across one backoff plus the retried call.
func (m *Machine) leaseTTL(policy domain.RetryPolicy) time.Duration {
	return policy.MaxDelay() + policy.CallTimeout() + m.lockSlack
}

// Run reconciles one event attempt. Unknown triggers end SKIPPED without
// touching the lock or the adapter. A retry that still holds its lease
// re-issues the pending call; one whose lease was lost starts over from the lookup.
func (m *Machine) Run(ctx context.Context, in Input) Result {
	if in.Trigger == domain.TriggerUnknown {
		return Result{State: domain.StateSkipped, Reason: "trigger value matches neither open nor close values", Retry: in.Retry}
	}
	policy := in.Config.RetryPolicy
	ttl := m.leaseTTL(policy)

	if in.Retry.HasLease() && in.Retry.Action != domain.ActionNone {
		lease := lock.Lease{Key: in.Retry.LeaseKey, Token: in.Retry.LeaseToken}
		resumed, err := m.locker.Resume(ctx, lease, ttl)
		switch {
		case err == nil:
			return m.execute(ctx, in, resumed, in.Retry.Action, in.Retry.TicketID)
		case errors.Is(err, lock.ErrLeaseLost):
			m.logger.Warn("lease lost between retries; reconciling again",
				zap.String("correlation_id", in.Event.CorrelationID),
				zap.String("dedup_key", in.Key.Value))
			in.Retry = clearPending(in.Retry)
		default:
			return m.failBeforeCall(policy, in, fmt.Errorf("resume lease: %w", err))
		}
	}

	lease, err := m.locker.Acquire(ctx, in.Key.Value, ttl, m.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			err = &LockTimeoutError{Key: in.Key.Value, Wait: m.lockWait, Err: err}
		}
		return m.failBeforeCall(policy, in, err)
	}
	defer m.releaseOnPanic(ctx, lease)

	var existing *domain.TicketRecord
	find := m.retries.Do(ctx, policy, in.Retry, func(ctx context.Context) error {
		var err error
		existing, err = m.adapter.FindOpenTicket(ctx, in.Key)
		return err
	})
	if find.Outcome != retry.Succeeded {
		m.release(ctx, lease)
		return fromDecision(find, domain.ActionNone, "")
	}
	in.Retry.Attempt = find.State.Attempt

	switch {
	case in.Trigger == domain.TriggerClose && existing.IsOpen():
		return m.execute(ctx, in, lease, domain.ActionClose, existing.ID)
	case in.Trigger == domain.TriggerClose:
		m.release(ctx, lease)
		return Result{State: domain.StateSkipped, Reason: "no open ticket to close", Retry: in.Retry}
	case existing.IsOpen():
		return m.execute(ctx, in, lease, domain.ActionUpdate, existing.ID)
	default:
		return m.execute(ctx, in, lease, domain.ActionCreate, "")
	}
}

// execute performs the chosen call while holding lease. The lease is released
// unless the call is rescheduled, in which case it travels with the retry state.
func (m *Machine) execute(ctx context.Context, in Input, lease lock.Lease, action domain.Action, ticketID string) Result {
	defer m.releaseOnPanic(ctx, lease)
	policy := in.Config.RetryPolicy
	note := in.Retry.Note
	if note == "" {
		note = noteFor(action, in)
	}

	var createdID string
	decision := m.retries.Do(ctx, policy, in.Retry, func(ctx context.Context) error {
		switch action {
		case domain.ActionCreate:
			id, err := m.adapter.CreateTicket(ctx, in.Fields)
			createdID = id
			return err
		case domain.ActionUpdate:
			return m.adapter.AppendNote(ctx, ticketID, note)
		case domain.ActionClose:
			return m.adapter.CloseTicket(ctx, ticketID, note)
		}
		return fmt.Errorf("unknown action %q", action)
	})
	if action == domain.ActionCreate {
		ticketID = createdID
	}

	if decision.Outcome == retry.Retry {
		st := decision.State
		st.LeaseKey = lease.Key
		st.LeaseToken = lease.Token
		st.Action = action
		st.TicketID = ticketID
		st.DedupKey = in.Key
		st.Fields = in.Fields
		st.Note = note
		st.MatchedRules = in.MatchedRules
		res := fromDecision(decision, action, ticketID)
		res.Retry = st
		return res
	}

	m.release(ctx, lease)
	return fromDecision(decision, action, ticketID)
}

// failBeforeCall handles failures that happen before any adapter call is in flight.
func (m *Machine) failBeforeCall(policy domain.RetryPolicy, in Input, err error) Result {
	d := m.retries.Decide(policy, clearPending(in.Retry), err)
	return fromDecision(d, domain.ActionNone, "")
}

func (m *Machine) release(ctx context.Context, lease lock.Lease) {
	// Release must happen even if the event's context is already done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.locker.Release(ctx, lease); err != nil {
		m.logger.Warn("failed to release lease", zap.String("key", lease.Key), zap.Error(err))
	}
}

// releaseOnPanic frees lease when an adapter call panics, then re-panics.
func (m *Machine) releaseOnPanic(ctx context.Context, lease lock.Lease) {
	if r := recover(); r != nil {
		m.release(ctx, lease)
		panic(r)
	}
}

func fromDecision(d retry.Decision, action domain.Action, ticketID string) Result {
	res := Result{Action: action, TicketID: ticketID, Retry: d.State, Class: d.Class, Err: d.Err}
	switch d.Outcome {
	case retry.Succeeded:
		res.State = successState(action)
	case retry.Retry:
		res.State = domain.StateRetrying
		res.Delay = d.Delay
		res.Retry = clearPending(d.State)
	case retry.Failed:
		res.State = domain.StateFailed
	case retry.DeadLettered:
		res.State = domain.StateDeadLetter
		res.Retry = clearPending(d.State)
	}
	if d.Err != nil {
		res.Reason = d.Err.Error()
	}
	return res
}

func successState(action domain.Action) domain.State {
	if action == domain.ActionClose {
		return domain.StateClosed
	}
	return domain.StateOpen
}

func clearPending(st domain.RetryState) domain.RetryState {
	st.LeaseKey = ""
	st.LeaseToken = ""
	st.Action = domain.ActionNone
	st.TicketID = ""
	st.Note = ""
	return st
}

// noteFor builds the update or resolution note text.
func noteFor(action domain.Action, in Input) string {
	msg := in.Message
	if msg == "" {
		msg = "No message"
	}
	switch action {
	case domain.ActionUpdate:
		return fmt.Sprintf("Duplicate DOWN alert detected. Updated details:\nMessage: %s\nRequest ID: %s", msg, in.Event.CorrelationID)
	case domain.ActionClose:
		return fmt.Sprintf("Resource %s is back UP.\nMessage: %s\nRequest ID: %s", in.Fields.SourceName, msg, in.Event.CorrelationID)
	}
	return ""
}
