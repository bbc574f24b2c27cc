package domain

// TicketStatus is the minimal mirror of the external ticket state.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketRecord is what the ticketing system reports about an existing ticket.
// It is never cached beyond one reconciliation.
type TicketRecord struct {
	ID       string       `json:"id"`
	Status   TicketStatus `json:"status"`
	DedupKey string       `json:"dedup_key"`
	Summary  string       `json:"summary,omitempty"`
}

// IsOpen reports whether the ticket can still receive notes.
func (t *TicketRecord) IsOpen() bool {
	return t != nil && t.Status == TicketStatusOpen
}

// TicketFields is the create payload handed to the ticketing adapter.
type TicketFields struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Company     string            `json:"company,omitempty"`
	Board       string            `json:"board,omitempty"`
	Status      string            `json:"status,omitempty"`
	TicketType  string            `json:"ticket_type,omitempty"`
	Subtype     string            `json:"subtype,omitempty"`
	Item        string            `json:"item,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	Impact      string            `json:"impact,omitempty"`
	SourceName  string            `json:"source_name,omitempty"`
	DedupKey    string            `json:"dedup_key"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// NewTicketFields projects resolved fields onto the adapter payload.
func NewTicketFields(fields ResolvedFields, key DedupKey) TicketFields {
	known := map[string]struct{}{
		FieldSummary: {}, FieldDescription: {}, FieldCompany: {}, FieldCustomerID: {},
		FieldBoard: {}, FieldStatus: {}, FieldTicketType: {}, FieldSubtype: {},
		FieldItem: {}, FieldPriority: {}, FieldSeverity: {}, FieldImpact: {}, FieldDrop: {}, FieldSourceName: {}, FieldMessage: {},
	}
	out := TicketFields{
		Summary:     fields.Value(FieldSummary),
		Description: fields.Value(FieldDescription),
		Company:     fields.Value(FieldCompany),
		Board:       fields.Value(FieldBoard),
		Status:      fields.Value(FieldStatus),
		TicketType:  fields.Value(FieldTicketType),
		Subtype:     fields.Value(FieldSubtype),
		Item:        fields.Value(FieldItem),
		Priority:    fields.Value(FieldPriority),
		Severity:    fields.Value(FieldSeverity),
		Impact:      fields.Value(FieldImpact),
		SourceName:  fields.Value(FieldSourceName),
		DedupKey:    key.Value,
	}
	for k, v := range fields {
		if _, ok := known[k]; ok || v == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]string{}
		}
		out.Extra[k] = v
	}
	return out
}
