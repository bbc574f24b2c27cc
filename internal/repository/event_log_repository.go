package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// EventLogRepository records the processing history of events.
type EventLogRepository interface {
	Append(ctx context.Context, entry *domain.EventLog) error
	ListByCorrelation(ctx context.Context, correlationID string) ([]domain.EventLog, error)
	// DeleteOlderThan removes entries created before cutoff and reports how many went.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventLogRepository struct {
	pool *pgxpool.Pool
}

// NewEventLogRepository instantiates repository.
func NewEventLogRepository(pool *pgxpool.Pool) EventLogRepository {
	return &eventLogRepository{pool: pool}
}

func (r *eventLogRepository) Append(ctx context.Context, entry *domain.EventLog) error {
	const query = `
        INSERT INTO event_log (event_id, correlation_id, endpoint_id, state, action, ticket_id, dedup_key,
            matched_rules, error_message, attempts, payload, processing_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id::text, created_at`
	matched := entry.MatchedRules
	if matched == nil {
		matched = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		entry.EventID,
		entry.CorrelationID,
		entry.EndpointID,
		entry.State,
		entry.Action,
		entry.TicketID,
		entry.DedupKey,
		matched,
		entry.ErrorMessage,
		entry.Attempts,
		entry.Payload,
		entry.ProcessingTime.Milliseconds(),
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *eventLogRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]domain.EventLog, error) {
	const query = `
        SELECT id::text, event_id, correlation_id, endpoint_id, state, action, ticket_id, dedup_key,
               matched_rules, error_message, attempts, payload, processing_ms, created_at
        FROM event_log WHERE correlation_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EventLog
	for rows.Next() {
		var (
			e  domain.EventLog
			ms int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.CorrelationID,
			&e.EndpointID,
			&e.State,
			&e.Action,
			&e.TicketID,
			&e.DedupKey,
			&e.MatchedRules,
			&e.ErrorMessage,
			&e.Attempts,
			&e.Payload,
			&ms,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}
		e.ProcessingTime = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete event log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func joinClauses(clauses []string) string {
	return strings.Join(clauses, " AND ")
}
