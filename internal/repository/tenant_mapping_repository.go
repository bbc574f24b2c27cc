package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// TenantMappingRepository stores the global tenant to company table.
type TenantMappingRepository interface {
	ListTenantMappings(ctx context.Context) ([]domain.TenantMapping, error)
	Upsert(ctx context.Context, mapping *domain.TenantMapping) error
}

type tenantMappingRepository struct {
	pool *pgxpool.Pool
}

// NewTenantMappingRepository instantiates repository.
func NewTenantMappingRepository(pool *pgxpool.Pool) TenantMappingRepository {
	return &tenantMappingRepository{pool: pool}
}

func (r *tenantMappingRepository) ListTenantMappings(ctx context.Context) ([]domain.TenantMapping, error) {
	const query = `
        SELECT id::text, tenant_value, company_id, description
        FROM tenant_mappings ORDER BY tenant_value`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TenantMapping
	for rows.Next() {
		var m domain.TenantMapping
		if err := rows.Scan(&m.ID, &m.TenantValue, &m.CompanyID, &m.Description); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *tenantMappingRepository) Upsert(ctx context.Context, mapping *domain.TenantMapping) error {
	const query = `
        INSERT INTO tenant_mappings (tenant_value, company_id, description)
        VALUES ($1,$2,$3)
        ON CONFLICT (tenant_value) DO UPDATE SET company_id=EXCLUDED.company_id,
            description=EXCLUDED.description
        RETURNING id::text`
	return r.pool.QueryRow(ctx, query, mapping.TenantValue, mapping.CompanyID, mapping.Description).Scan(&mapping.ID)
}
