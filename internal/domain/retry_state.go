package domain

import "time"

// RetryState travels with an event while its ticketing call is pending.
type RetryState struct {
	Attempt     int       `json:"attempt"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	DeadLetter  bool      `json:"dead_letter,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	// Unexpected counts failures that matched no known error class.
	Unexpected int `json:"unexpected,omitempty"`

	// Pending call carried across a retry together with the per-key lease.
	LeaseKey     string       `json:"lease_key,omitempty"`
	LeaseToken   string       `json:"lease_token,omitempty"`
	Action       Action       `json:"action,omitempty"`
	TicketID     string       `json:"ticket_id,omitempty"`
	DedupKey     DedupKey     `json:"dedup_key"`
	Fields       TicketFields `json:"fields"`
	Note         string       `json:"note,omitempty"`
	MatchedRules []string     `json:"matched_rules,omitempty"`
}

// HasLease reports whether a per-key lease is held across the retry.
func (s RetryState) HasLease() bool {
	return s.LeaseToken != "" && s.LeaseKey != ""
}

// DeadLetter is the durable record of an event that exhausted its retries.
type DeadLetter struct {
	ID             string     `json:"id"`
	Event          Event      `json:"event"`
	DedupKey       string     `json:"dedup_key"`
	LastError      string     `json:"last_error"`
	AttemptCount   int        `json:"attempt_count"`
	DeadLetteredAt time.Time  `json:"dead_lettered_at"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	ReplayEventID  *string    `json:"replay_event_id,omitempty"`
}
