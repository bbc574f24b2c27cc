package events

import (
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventAlertProcessed     EventType = "alert_processed"
	EventAlertDeadLettered  EventType = "alert_dead_lettered"
	EventDeadLetterReplayed EventType = "dead_letter_replayed"
)

// Event is published by the pipeline after an alert reaches an outcome.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	TicketID      string    `json:"ticket_id,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	EndpointID    string    `json:"endpoint_id"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload"`
}

// TicketCreatedPayload carries what the annotator needs about a new ticket.
type TicketCreatedPayload struct {
	Summary    string                  `json:"summary"`
	DedupKey   string                  `json:"dedup_key"`
	Annotation domain.AnnotationConfig `json:"annotation"`
	// MaskedPayload is the alert body with secrets replaced.
	MaskedPayload string `json:"masked_payload"`
}

// AlertProcessedPayload describes the outcome of one processing attempt.
type AlertProcessedPayload struct {
	EventID  string        `json:"event_id"`
	State    domain.State  `json:"state"`
	Action   domain.Action `json:"action,omitempty"`
	DedupKey string        `json:"dedup_key,omitempty"`
	Attempt  int           `json:"attempt"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// DeadLetterPayload describes a dead letter that was recorded or replayed.
type DeadLetterPayload struct {
	DeadLetterID  string `json:"dead_letter_id"`
	LastError     string `json:"last_error"`
	AttemptCount  int    `json:"attempt_count"`
	ReplayEventID string `json:"replay_event_id,omitempty"`
}
