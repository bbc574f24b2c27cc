package domain

import (
	"strings"
	"time"
)

// Event is one delivery of a raw alert payload for an endpoint.
// Re-delivered or replayed payloads produce a new Event carrying the same CorrelationID.
type Event struct {
	ID            string    `json:"id"`
	EndpointID    string    `json:"endpoint_id"`
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
	// Payload is kept as raw bytes; a malformed body must reach the resolver unchanged.
	Payload       []byte    `json:"raw_payload"`
	SourceIP      string    `json:"source_ip,omitempty"`
}

// ResolvedFields maps destination fields to resolved values. Absent keys are undefined.
type ResolvedFields map[string]string

// Get returns the value and whether it is defined.
func (f ResolvedFields) Get(field string) (string, bool) {
	v, ok := f[field]
	return v, ok
}

// Value returns the resolved value or "" when undefined.
func (f ResolvedFields) Value(field string) string {
	return f[field]
}

// Clone copies the fields.
func (f ResolvedFields) Clone() ResolvedFields {
	out := make(ResolvedFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Well-known destination fields.
const (
	FieldSummary     = "summary"
	FieldDescription = "description"
	FieldCompany     = "company"
	FieldCustomerID  = "customer_id"
	FieldBoard       = "board"
	FieldStatus      = "status"
	FieldTicketType  = "ticket_type"
	FieldSubtype     = "subtype"
	FieldItem        = "item"
	FieldPriority    = "priority"
	FieldSeverity    = "severity"
	FieldImpact      = "impact"
	FieldDrop        = "drop"
	FieldSourceName  = "source_name"
	FieldMessage     = "message"
)

// SummaryPlaceholder is used when nothing in the payload names the alert source.
const SummaryPlaceholder = "Unknown Source"

// DedupKey identifies the logical alert a ticket belongs to.
type DedupKey struct {
	EndpointID string `json:"endpoint_id"`
	Company    string `json:"company"`
	Summary    string `json:"summary"`
	Value      string `json:"value"`
}

// NewDedupKey derives the key from endpoint, company and summary, or from the
// configured key fields when present.
func NewDedupKey(endpointID string, fields ResolvedFields, keyFields []string) DedupKey {
	key := DedupKey{
		EndpointID: endpointID,
		Company:    fields.Value(FieldCompany),
		Summary:    fields.Value(FieldSummary),
	}
	parts := []string{endpointID}
	if len(keyFields) > 0 {
		for _, f := range keyFields {
			parts = append(parts, fields.Value(f))
		}
	} else {
		parts = append(parts, key.Company, key.Summary)
	}
	key.Value = strings.Join(parts, "|")
	return key
}

func (k DedupKey) String() string {
	return k.Value
}
