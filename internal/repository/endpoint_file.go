package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// EndpointFile is the on-disk definition of endpoints and tenant mappings,
// used when no database is configured.
type EndpointFile struct {
	Endpoints      []domain.EndpointConfig `json:"endpoints" yaml:"endpoints"`
	TenantMappings []domain.TenantMapping  `json:"tenant_mappings" yaml:"tenant_mappings"`
}

// enabledFlags captures whether "enabled" was written at all; endpoints are enabled unless it says false.
type enabledFlags struct {
	Endpoints []struct {
		Enabled *bool `json:"enabled" yaml:"enabled"`
	} `json:"endpoints" yaml:"endpoints"`
}

// LoadEndpointFile reads a YAML (.yaml, .yml) or JSON-with-comments (.json, .jsonc) file.
func LoadEndpointFile(path string) (*EndpointFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoint file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	file, err := ParseEndpointFile(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// ParseEndpointFile decodes data in format ("yaml", "yml", "json" or "jsonc"),
// applies endpoint defaults and validates every endpoint.
func ParseEndpointFile(data []byte, format string) (*EndpointFile, error) {
	var (
		file  EndpointFile
		flags enabledFlags
	)
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &flags); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "json", "jsonc":
		clean := jsonc.ToJSON(data)
		if err := json.Unmarshal(clean, &file); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if err := json.Unmarshal(clean, &flags); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported endpoint file format %q", format)
	}

	seen := make(map[string]struct{}, len(file.Endpoints))
	var errs []error
	for i := range file.Endpoints {
		cfg := &file.Endpoints[i]
		if i < len(flags.Endpoints) && flags.Endpoints[i].Enabled == nil {
			cfg.Enabled = true
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("endpoints[%d]: %w", i, err))
			continue
		}
		if _, dup := seen[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("endpoints[%d]: duplicate id %q", i, cfg.ID))
		}
		seen[cfg.ID] = struct{}{}
	}
	for i, m := range file.TenantMappings {
		if strings.TrimSpace(m.TenantValue) == "" || strings.TrimSpace(m.CompanyID) == "" {
			errs = append(errs, fmt.Errorf("tenant_mappings[%d]: tenant_value and company_id are required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &file, nil
}
