package domain

import "time"

// EventLog is the processing history entry for one event attempt chain.
type EventLog struct {
	ID             string
	EventID        string
	CorrelationID  string
	EndpointID     string
	State          State
	Action         Action
	TicketID       *string
	DedupKey       string
	MatchedRules   []string
	ErrorMessage   *string
	Attempts       int
	Payload        string
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// TenantMapping maps a tenant value (exact or glob) to a ticketing company id.
type TenantMapping struct {
	ID          string `json:"id" yaml:"id"`
	TenantValue string `json:"tenant_value" yaml:"tenant_value"`
	CompanyID   string `json:"company_id" yaml:"company_id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}
