package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// EndpointRepository encapsulates endpoint configuration persistence.
type EndpointRepository interface {
	GetByID(ctx context.Context, id string) (*domain.EndpointConfig, error)
	List(ctx context.Context) ([]domain.EndpointConfig, error)
	Upsert(ctx context.Context, cfg *domain.EndpointConfig) error
}

type endpointRepository struct {
	pool *pgxpool.Pool
}

// NewEndpointRepository instantiates repository.
func NewEndpointRepository(pool *pgxpool.Pool) EndpointRepository {
	return &endpointRepository{pool: pool}
}

func (r *endpointRepository) GetByID(ctx context.Context, id string) (*domain.EndpointConfig, error) {
	const query = `SELECT id, enabled, config FROM endpoints WHERE id=$1`
	var (
		rowID   string
		enabled bool
		raw     []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&rowID, &enabled, &raw); err != nil {
		return nil, notFound(err)
	}
	return decodeEndpoint(rowID, enabled, raw)
}

func (r *endpointRepository) List(ctx context.Context) ([]domain.EndpointConfig, error) {
	const query = `SELECT id, enabled, config FROM endpoints ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EndpointConfig
	for rows.Next() {
		var (
			id      string
			enabled bool
			raw     []byte
		)
		if err := rows.Scan(&id, &enabled, &raw); err != nil {
			return nil, err
		}
		cfg, err := decodeEndpoint(id, enabled, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

func (r *endpointRepository) Upsert(ctx context.Context, cfg *domain.EndpointConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode endpoint %s: %w", cfg.ID, err)
	}
	const query = `
        INSERT INTO endpoints (id, name, enabled, config)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, enabled=EXCLUDED.enabled,
            config=EXCLUDED.config, updated_at=NOW()`
	_, err = r.pool.Exec(ctx, query, cfg.ID, cfg.Name, cfg.Enabled, raw)
	return err
}

// decodeEndpoint trusts the id and enabled columns over the stored document.
func decodeEndpoint(id string, enabled bool, raw []byte) (*domain.EndpointConfig, error) {
	var cfg domain.EndpointConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode endpoint %s: %w", id, err)
	}
	cfg.ID = id
	cfg.Enabled = enabled
	cfg.ApplyDefaults()
	return &cfg, nil
}
