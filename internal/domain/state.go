package domain

// State is a reconciliation state. NEW, SUPPRESSED and SKIPPED are entry points;
// CLOSED, FAILED and DEAD_LETTER are terminal.
type State string

const (
	StateNew        State = "NEW"
	StateOpen       State = "OPEN"
	StateUpdating   State = "UPDATING"
	StateClosing    State = "CLOSING"
	StateClosed     State = "CLOSED"
	StateSuppressed State = "SUPPRESSED"
	StateSkipped    State = "SKIPPED"
	StateFailed     State = "FAILED"
	StateDeadLetter State = "DEAD_LETTER"
	// StateRetrying marks an event whose adapter call was rescheduled.
	StateRetrying State = "RETRYING"
)

// Terminal reports whether no further processing happens for the event.
func (s State) Terminal() bool {
	switch s {
	case StateOpen, StateClosed, StateSuppressed, StateSkipped, StateFailed, StateDeadLetter:
		return true
	}
	return false
}

// Actionable reports whether the outcome needs operator attention.
func (s State) Actionable() bool {
	return s == StateFailed || s == StateDeadLetter
}

// Action is the ticket-mutating call chosen by reconciliation.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionClose  Action = "close"
)

// TriggerKind classifies the trigger value against the endpoint's value sets.
type TriggerKind string

const (
	TriggerOpen    TriggerKind = "open"
	TriggerClose   TriggerKind = "close"
	TriggerUnknown TriggerKind = "unknown"
)
