package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/alertbridge/internal/domain"
)

const yamlEndpoints = `
endpoints:
  - id: uptime
    name: Uptime Kuma
    trigger_field: $.heartbeat.status
    open_values: ["0"]
    close_values: ["1"]
    mapping:
      summary: $.monitor.name
      board: $.tags.board
    routing_rules:
      - source_path: $.monitor.name
        regex: "^db-"
        overrides: {board: DBA}
    maintenance_windows:
      - {type: daily, start: "22:00", end: "04:00"}
    retry_policy: {max_attempts: 3, base_delay: 1, max_delay: 8}
  - id: muted
    enabled: false
tenant_mappings:
  - {tenant_value: "acme-*", company_id: ACME}
`

func TestParseEndpointFileYAML(t *testing.T) {
	file, err := ParseEndpointFile([]byte(yamlEndpoints), "yaml")
	require.NoError(t, err)
	require.Len(t, file.Endpoints, 2)

	uptime := file.Endpoints[0]
	assert.True(t, uptime.Enabled)
	assert.Equal(t, "$.heartbeat.status", uptime.TriggerField)
	assert.Equal(t, "$.monitor.name", uptime.Mapping["summary"])
	require.Len(t, uptime.RoutingRules, 1)
	assert.Equal(t, "DBA", uptime.RoutingRules[0].Overrides["board"])
	assert.Equal(t, domain.WindowDaily, uptime.MaintenanceWindows[0].Type)
	assert.Equal(t, 3, uptime.RetryPolicy.MaxAttempts)
	assert.Equal(t, domain.DefaultCallTimeout, uptime.RetryPolicy.CallTimeout())

	muted := file.Endpoints[1]
	assert.False(t, muted.Enabled)
	assert.Equal(t, domain.DefaultTriggerField, muted.TriggerField)
	assert.Equal(t, []string{"0"}, muted.OpenValues)

	require.Len(t, file.TenantMappings, 1)
	assert.Equal(t, "ACME", file.TenantMappings[0].CompanyID)
}

func TestParseEndpointFileJSONC(t *testing.T) {
	data := []byte(`{
		// primary monitor
		"endpoints": [
			{"id": "grafana", "trigger_field": "$.state", "open_values": ["alerting"], "close_values": ["ok"],},
		],
	}`)
	file, err := ParseEndpointFile(data, "jsonc")
	require.NoError(t, err)
	require.Len(t, file.Endpoints, 1)
	assert.True(t, file.Endpoints[0].Enabled)
	assert.Equal(t, []string{"alerting"}, file.Endpoints[0].OpenValues)
}

func TestParseEndpointFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing id", "endpoints:\n  - name: x\n"},
		{"duplicate id", "endpoints:\n  - id: a\n  - id: a\n"},
		{"bad window", "endpoints:\n  - id: a\n    maintenance_windows:\n      - {type: daily, start: '25:00', end: '01:00'}\n"},
		{"bad rule", "endpoints:\n  - id: a\n    routing_rules:\n      - {regex: x}\n"},
		{"bad tenant", "tenant_mappings:\n  - {tenant_value: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEndpointFile([]byte(tt.data), "yml")
			assert.Error(t, err)
		})
	}

	_, err := ParseEndpointFile([]byte("{}"), "toml")
	assert.Error(t, err)
}

func TestLoadEndpointFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlEndpoints), 0o600))

	file, err := LoadEndpointFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Endpoints, 2)

	_, err = LoadEndpointFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleEndpointFileLoads(t *testing.T) {
	file, err := LoadEndpointFile(filepath.Join("..", "..", "endpoints.example.yaml"))
	require.NoError(t, err)
	require.Len(t, file.Endpoints, 1)
	cfg := file.Endpoints[0]
	assert.True(t, cfg.Enabled)
	assert.Len(t, cfg.RoutingRules, 2)
	assert.Len(t, cfg.MaintenanceWindows, 2)
	assert.Equal(t, "ACME", file.TenantMappings[0].CompanyID)
}
