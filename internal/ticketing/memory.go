package ticketing

import (
	"context"
	"strconv"
	"sync"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// Operation names used for call counting and fault injection.
const (
	OpFind   = "find"
	OpCreate = "create"
	OpNote   = "note"
	OpClose  = "close"
)

// MemoryTicket is a ticket held by MemoryAdapter.
type MemoryTicket struct {
	Record domain.TicketRecord
	Fields domain.TicketFields
	Notes  []string
}

// MemoryAdapter is an in-process ticketing system.
type MemoryAdapter struct {
	mu      sync.Mutex
	nextID  int
	tickets map[string]*MemoryTicket
	calls   map[string]int
	faults  map[string][]error
}

// NewMemoryAdapter returns an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		nextID:  1000,
		tickets: make(map[string]*MemoryTicket),
		calls:   make(map[string]int),
		faults:  make(map[string][]error),
	}
}

// FailNext queues errors returned by the next calls of op, in order.
func (a *MemoryAdapter) FailNext(op string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults[op] = append(a.faults[op], errs...)
}

// Calls returns how many times op was invoked, failed calls included.
func (a *MemoryAdapter) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// TotalCalls counts every call made to the adapter.
func (a *MemoryAdapter) TotalCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

// Ticket returns a copy of a stored ticket.
func (a *MemoryAdapter) Ticket(id string) (MemoryTicket, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tickets[id]
	if !ok {
		return MemoryTicket{}, false
	}
	out := *t
	out.Notes = append([]string(nil), t.Notes...)
	return out, true
}

// Tickets returns copies of every ticket.
func (a *MemoryAdapter) Tickets() []MemoryTicket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]MemoryTicket, 0, len(a.tickets))
	for _, t := range a.tickets {
		c := *t
		c.Notes = append([]string(nil), t.Notes...)
		out = append(out, c)
	}
	return out
}

// begin counts the call and pops an injected fault. Caller holds mu.
func (a *MemoryAdapter) begin(op string) error {
	a.calls[op]++
	if q := a.faults[op]; len(q) > 0 {
		a.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

func (a *MemoryAdapter) FindOpenTicket(_ context.Context, key domain.DedupKey) (*domain.TicketRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(OpFind); err != nil {
		return nil, err
	}
	for _, t := range a.tickets {
		if t.Record.DedupKey == key.Value && t.Record.IsOpen() {
			rec := t.Record
			return &rec, nil
		}
	}
	return nil, nil
}

func (a *MemoryAdapter) CreateTicket(_ context.Context, fields domain.TicketFields) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(OpCreate); err != nil {
		return "", err
	}
	a.nextID++
	id := strconv.Itoa(a.nextID)
	a.tickets[id] = &MemoryTicket{
		Record: domain.TicketRecord{ID: id, Status: domain.TicketStatusOpen, DedupKey: fields.DedupKey, Summary: fields.Summary},
		Fields: fields,
	}
	return id, nil
}

func (a *MemoryAdapter) AppendNote(_ context.Context, ticketID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(OpNote); err != nil {
		return err
	}
	t, ok := a.tickets[ticketID]
	if !ok {
		return &PermanentError{Op: OpNote, StatusCode: 404, Message: "ticket " + ticketID + " not found"}
	}
	t.Notes = append(t.Notes, text)
	return nil
}

func (a *MemoryAdapter) CloseTicket(_ context.Context, ticketID, resolution string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin(OpClose); err != nil {
		return err
	}
	t, ok := a.tickets[ticketID]
	if !ok {
		return &PermanentError{Op: OpClose, StatusCode: 404, Message: "ticket " + ticketID + " not found"}
	}
	t.Record.Status = domain.TicketStatusClosed
	if resolution != "" {
		t.Notes = append(t.Notes, resolution)
	}
	return nil
}
