package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/alertbridge/internal/domain"
)

func mustParse(t *testing.T, raw string) *Value {
	t.Helper()
	v, err := Parse([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestLookup(t *testing.T) {
	doc := mustParse(t, `{
		"status": "down",
		"code": 500,
		"ok": false,
		"gone": null,
		"monitor": {"name": "DB Server", "tags": ["prod", "db"]},
		"alerts": [{"id": 1, "msg": "down"}, {"id": 2, "msg": "timeout"}],
		"weird key": {"x": "y"},
		"deep": {"a": {"b": {"name": "inner"}}, "name": "outer"}
	}`)

	tests := []struct {
		name   string
		expr   string
		want   string
		wantOK bool
	}{
		{"simple", "$.status", "down", true},
		{"number keeps literal", "$.code", "500", true},
		{"bool", "$.ok", "false", true},
		{"null is undefined", "$.gone", "", false},
		{"nested", "$.monitor.name", "DB Server", true},
		{"bare path", "monitor.name", "DB Server", true},
		{"index", "$.monitor.tags[0]", "prod", true},
		{"negative index", "$.monitor.tags[-1]", "db", true},
		{"array member", "$.alerts[1].msg", "timeout", true},
		{"quoted key", "$['weird key'].x", "y", true},
		{"wildcard", "$.alerts[*].msg", "down", true},
		{"dot wildcard", "$.alerts.*.id", "1", true},
		{"recursive descent first in document order", "$..name", "DB Server", true},
		{"recursive descent checks the node before its descendants", "$.deep..name", "outer", true},
		{"recursive descent into nested objects", "$.deep.a..name", "inner", true},
		{"object renders as json", "$.monitor.tags", `["prod","db"]`, true},
		{"missing", "$.nonexistent", "", false},
		{"missing deep", "$.status.b.c", "", false},
		{"index out of range", "$.alerts[5].msg", "", false},
		{"malformed path", "$.alerts[abc", "", false},
		{"root", "$", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(doc, tt.expr)
			assert.Equal(t, tt.wantOK, ok)
			if tt.expr == "$" {
				assert.True(t, strings.HasPrefix(got, `{"status":"down"`))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	for _, raw := range []string{``, `   `, `{"a":`, `{"a":1}}`, `not json`, `{"a":1} {"b":2}`} {
		_, err := Parse([]byte(raw))
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr, "payload %q", raw)
	}
}

func TestExpand(t *testing.T) {
	doc := mustParse(t, `{"host": "web-1", "state": "down", "monitor": {"name": "srv1"}}`)

	got, ok := Expand(doc, "Host {$.host} is {$.state} ({$.missing})")
	assert.True(t, ok)
	assert.Equal(t, "Host web-1 is down ()", got)

	got, ok = Expand(doc, "$.monitor.name on $.host")
	assert.True(t, ok)
	assert.Equal(t, "srv1 on web-1", got)

	got, ok = Expand(doc, "$.monitor.name on $.nothere")
	assert.True(t, ok)
	assert.Equal(t, "srv1 on", got)

	_, ok = Expand(doc, "$.a on $.b")
	assert.False(t, ok)
}

func TestFieldsResolveIndependently(t *testing.T) {
	doc := mustParse(t, `{"monitor": {"name": "srv1"}, "sev": "high"}`)
	fields := Fields(doc, map[string]string{
		"summary":  "$.monitor.name",
		"priority": "$.sev",
		"board":    "$.missing.board",
	})
	assert.Equal(t, "srv1", fields["summary"])
	assert.Equal(t, "high", fields["priority"])
	_, ok := fields.Get("board")
	assert.False(t, ok)
	assert.Equal(t, "", fields.Value("board"))
}

func TestTriggerMissingIsUndefined(t *testing.T) {
	doc := mustParse(t, `{"heartbeat": {"status": 0}}`)
	v, ok := Trigger(doc, "$.heartbeat.status")
	assert.True(t, ok)
	assert.Equal(t, "0", v)

	_, ok = Trigger(doc, "$.heartbeat.other")
	assert.False(t, ok)
}

func TestFinalizeSummary(t *testing.T) {
	prefixNone := ""
	long := strings.Repeat("x", 120)

	tests := []struct {
		name    string
		payload string
		cfg     domain.EndpointConfig
		mapped  string
		want    string
	}{
		{"mapped with default prefix", `{}`, domain.EndpointConfig{}, "srv1", "Alert: srv1"},
		{"falls back to monitor name", `{"monitor":{"name":"db"}}`, domain.EndpointConfig{}, "", "Alert: db"},
		{"falls back to title", `{"title":"Disk"}`, domain.EndpointConfig{TicketPrefix: &prefixNone}, "", "Disk"},
		{"placeholder", `{}`, domain.EndpointConfig{TicketPrefix: &prefixNone}, "", domain.SummaryPlaceholder},
		{"remove strings", `{}`, domain.EndpointConfig{SummaryRemoveStrings: "[PROD],"}, "[PROD] api", "Alert:  api"},
		{"removal leaving nothing", `{}`, domain.EndpointConfig{TicketPrefix: &prefixNone, SummaryRemoveStrings: "gone"}, "gone", domain.SummaryPlaceholder},
		{"truncated", `{}`, domain.EndpointConfig{TicketPrefix: &prefixNone}, long, strings.Repeat("x", 96) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			doc := mustParse(t, tt.payload)
			out := Finalize(doc, &cfg, domain.ResolvedFields{"summary": tt.mapped}, "req-1")
			assert.Equal(t, tt.want, out["summary"])
			assert.NotEmpty(t, out["summary"])
		})
	}
}

func TestFinalizeDescription(t *testing.T) {
	doc := mustParse(t, `{"monitor":{"name":"srv1"},"msg":"timeout","password":"hunter2","host":"h1"}`)

	out := Finalize(doc, &domain.EndpointConfig{}, domain.ResolvedFields{}, "req-9")
	desc := out["description"]
	assert.Contains(t, desc, "Source: srv1")
	assert.Contains(t, desc, "Message: timeout")
	assert.Contains(t, desc, "Request ID: req-9")
	assert.Contains(t, desc, `"password":"***"`)
	assert.NotContains(t, desc, "hunter2")

	cfg := domain.EndpointConfig{DescriptionTemplate: "{{ monitor_name }}: {{ msg }} on {$.host} [{{ request_id }}] {$.password}"}
	out = Finalize(doc, &cfg, domain.ResolvedFields{}, "req-9")
	assert.Equal(t, "srv1: timeout on h1 [req-9] ***", out["description"])

	out = Finalize(doc, &cfg, domain.ResolvedFields{"description": "mapped"}, "req-9")
	assert.Equal(t, "mapped", out["description"])
}

func TestFinalizeAppliesDefaults(t *testing.T) {
	doc := mustParse(t, `{}`)
	cfg := domain.EndpointConfig{Defaults: map[string]string{"board": "NOC", "priority": "P3"}}
	out := Finalize(doc, &cfg, domain.ResolvedFields{"priority": "P1"}, "r")
	assert.Equal(t, "NOC", out["board"])
	assert.Equal(t, "P1", out["priority"])
}

func TestMaskedJSONKeepsOrder(t *testing.T) {
	doc := mustParse(t, `{"b":1,"api_key":"k","a":[{"token":"t","n":"ok"}]}`)
	assert.Equal(t, `{"b":1,"api_key":"***","a":[{"token":"***","n":"ok"}]}`, MaskedJSON(doc))
}
