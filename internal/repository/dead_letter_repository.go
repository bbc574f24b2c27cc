package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// DeadLetterFilter narrows dead-letter listings.
type DeadLetterFilter struct {
	EndpointID      string
	IncludeReplayed bool
	Limit           int
	Offset          int
}

// DeadLetterRepository durably records events that exhausted their retries.
// A dead letter is keyed by its event id.
type DeadLetterRepository interface {
	// Record stores dl and reports false when one already exists for the event.
	Record(ctx context.Context, dl *domain.DeadLetter) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.DeadLetter, error)
	List(ctx context.Context, filter DeadLetterFilter) ([]domain.DeadLetter, error)
	// MarkReplayed claims the record for replay; ErrAlreadyReplayed if it was claimed before.
	MarkReplayed(ctx context.Context, id, replayEventID string, at time.Time) error
	// ClearReplay undoes MarkReplayed when the replay could not be submitted.
	ClearReplay(ctx context.Context, id string) error
}

type deadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository instantiates repository.
func NewDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &deadLetterRepository{pool: pool}
}

func (r *deadLetterRepository) Record(ctx context.Context, dl *domain.DeadLetter) (bool, error) {
	event, err := json.Marshal(dl.Event)
	if err != nil {
		return false, fmt.Errorf("encode event %s: %w", dl.Event.ID, err)
	}
	const query = `
        INSERT INTO dead_letters (id, endpoint_id, correlation_id, event, dedup_key, last_error, attempt_count, dead_lettered_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		dl.ID,
		dl.Event.EndpointID,
		dl.Event.CorrelationID,
		event,
		dl.DedupKey,
		dl.LastError,
		dl.AttemptCount,
		dl.DeadLetteredAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

const deadLetterColumns = `id, event, dedup_key, last_error, attempt_count, dead_lettered_at, replayed_at, replay_event_id`

func (r *deadLetterRepository) GetByID(ctx context.Context, id string) (*domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id=$1`
	dl, err := scanDeadLetter(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return dl, nil
}

func (r *deadLetterRepository) List(ctx context.Context, filter DeadLetterFilter) ([]domain.DeadLetter, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.EndpointID != "" {
		args = append(args, filter.EndpointID)
		clauses = append(clauses, fmt.Sprintf("endpoint_id=$%d", len(args)))
	}
	if !filter.IncludeReplayed {
		clauses = append(clauses, "replayed_at IS NULL")
	}
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE ` + joinClauses(clauses) + ` ORDER BY dead_lettered_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dl)
	}
	return out, rows.Err()
}

func (r *deadLetterRepository) MarkReplayed(ctx context.Context, id, replayEventID string, at time.Time) error {
	const query = `
        UPDATE dead_letters SET replayed_at=$1, replay_event_id=$2
        WHERE id=$3 AND replayed_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, replayEventID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyReplayed
	}
	return nil
}

func (r *deadLetterRepository) ClearReplay(ctx context.Context, id string) error {
	const query = `UPDATE dead_letters SET replayed_at=NULL, replay_event_id=NULL WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row rowScanner) (*domain.DeadLetter, error) {
	var (
		dl  domain.DeadLetter
		raw []byte
	)
	if err := row.Scan(
		&dl.ID,
		&raw,
		&dl.DedupKey,
		&dl.LastError,
		&dl.AttemptCount,
		&dl.DeadLetteredAt,
		&dl.ReplayedAt,
		&dl.ReplayEventID,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &dl.Event); err != nil {
		return nil, fmt.Errorf("decode dead letter %s: %w", dl.ID, err)
	}
	return &dl, nil
}
