package dto

import (
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// WebhookAccepted is returned once an alert is queued.
type WebhookAccepted struct {
	Status        string `json:"status"`
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
}

// DeadLetterSummary response.
type DeadLetterSummary struct {
	ID             string     `json:"id"`
	EndpointID     string     `json:"endpoint_id"`
	CorrelationID  string     `json:"correlation_id"`
	DedupKey       string     `json:"dedup_key"`
	LastError      string     `json:"last_error"`
	AttemptCount   int        `json:"attempt_count"`
	DeadLetteredAt time.Time  `json:"dead_lettered_at"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	ReplayEventID  *string    `json:"replay_event_id,omitempty"`
}

// ReplayResponse describes the event submitted by a replay.
type ReplayResponse struct {
	DeadLetterID  string `json:"dead_letter_id"`
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
}

// MaintenanceRequest toggles global maintenance.
type MaintenanceRequest struct {
	Enabled *bool `json:"enabled"`
}

// MaintenanceResponse reports global maintenance.
type MaintenanceResponse struct {
	Enabled bool `json:"enabled"`
}

// EventLogEntry response.
type EventLogEntry struct {
	EventID          string        `json:"event_id"`
	EndpointID       string        `json:"endpoint_id"`
	State            domain.State  `json:"state"`
	Action           domain.Action `json:"action,omitempty"`
	TicketID         *string       `json:"ticket_id,omitempty"`
	DedupKey         string        `json:"dedup_key,omitempty"`
	MatchedRules     []string      `json:"matched_rules"`
	Error            *string       `json:"error,omitempty"`
	Attempts         int           `json:"attempts"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	CreatedAt        time.Time     `json:"created_at"`
}
