// Package ticketing talks to the external ticketing system (PSA).
package ticketing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// Adapter is the ticketing system contract. Every call must be safe to
// re-issue after a transient failure.
type Adapter interface {
	FindOpenTicket(ctx context.Context, key domain.DedupKey) (*domain.TicketRecord, error)
	CreateTicket(ctx context.Context, fields domain.TicketFields) (string, error)
	AppendNote(ctx context.Context, ticketID, text string) error
	CloseTicket(ctx context.Context, ticketID, resolution string) error
}

// TransientError is a failure worth retrying: timeouts, 5xx and rate limits.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError is a rejection that will not change on retry. Message is the
// ticketing system's own text and is surfaced to operators unchanged.
type PermanentError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	return e.Message
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// StatusError maps a non-2xx HTTP response onto the error taxonomy.
func StatusError(op string, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return &TransientError{Op: op, StatusCode: status, Err: errors.New(http.StatusText(status))}
	default:
		msg := body
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &PermanentError{Op: op, StatusCode: status, Message: msg}
	}
}
