package routing

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/resolver"
)

// TenantSource lists the global tenant → company mappings.
type TenantSource interface {
	ListTenantMappings(ctx context.Context) ([]domain.TenantMapping, error)
}

var (
	companyTagRe = regexp.MustCompile(`#CW-?(\w+)`)
	tenantFields = []string{"Tenant", "tenant", "tenantId", "TenantId"}
)

// MatchTenant returns the company for tenant: an exact mapping first, then the
// first mapping whose value is a glob pattern matching it.
func MatchTenant(mappings []domain.TenantMapping, tenant string) (domain.TenantMapping, bool) {
	if tenant == "" {
		return domain.TenantMapping{}, false
	}
	for _, m := range mappings {
		if m.TenantValue == tenant {
			return m, true
		}
	}
	for _, m := range mappings {
		if !strings.ContainsAny(m.TenantValue, "*?") {
			continue
		}
		if ok, err := path.Match(m.TenantValue, tenant); err == nil && ok {
			return m, true
		}
	}
	return domain.TenantMapping{}, false
}

// TenantValue finds the tenant identifier at the top level or under TaskInfo.
func TenantValue(root *resolver.Value) string {
	for _, f := range tenantFields {
		for _, p := range []string{"$." + f, "$.TaskInfo." + f} {
			if v, ok := resolver.Lookup(root, p); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// CompanyResolver decides the ticket company for an event.
type CompanyResolver struct {
	tenants TenantSource
}

// NewCompanyResolver builds a resolver; tenants may be nil when global routing is unused.
func NewCompanyResolver(tenants TenantSource) *CompanyResolver {
	return &CompanyResolver{tenants: tenants}
}

// Resolve sets fields[company] from, in order: the mapped company or customer
// id, a #CW-<id> tag in the source name, the global tenant mapping when the
// endpoint enables it, and the endpoint default. The returned note describes
// a global mapping match and is empty otherwise. A failing tenant source falls
// back to the default company and the error is returned for logging only.
func (r *CompanyResolver) Resolve(ctx context.Context, root *resolver.Value, cfg *domain.EndpointConfig, fields domain.ResolvedFields) (string, error) {
	if v := strings.TrimSpace(fields.Value(domain.FieldCompany)); v != "" {
		return "", nil
	}
	if v := strings.TrimSpace(fields.Value(domain.FieldCustomerID)); v != "" {
		fields[domain.FieldCompany] = v
		return "", nil
	}
	if m := companyTagRe.FindStringSubmatch(fields.Value(domain.FieldSourceName)); m != nil {
		fields[domain.FieldCompany] = m[1]
		return "", nil
	}

	if cfg.GlobalRoutingEnabled && r.tenants != nil {
		if tenant := TenantValue(root); tenant != "" {
			mappings, err := r.tenants.ListTenantMappings(ctx)
			if err != nil {
				fields[domain.FieldCompany] = cfg.DefaultCompany
				return "", fmt.Errorf("list tenant mappings: %w", err)
			}
			if m, ok := MatchTenant(mappings, tenant); ok {
				fields[domain.FieldCompany] = m.CompanyID
				return "global:" + tenant, nil
			}
		}
	}

	fields[domain.FieldCompany] = cfg.DefaultCompany
	return "", nil
}
