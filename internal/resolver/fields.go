package resolver

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/alertbridge/internal/domain"
)

const (
	defaultTicketPrefix = "Alert:"
	maxSummaryLength    = 99
)

// sourceNamePaths are tried in order when no summary is mapped.
var sourceNamePaths = []string{"$.monitor.name", "$.title", "$.name"}

// Fields resolves every destination of mapping independently. A destination
// whose expression resolves to nothing is left out so it stays undefined;
// ResolvedFields.Value still reads it as the empty string.
func Fields(root *Value, mapping map[string]string) domain.ResolvedFields {
	out := make(domain.ResolvedFields, len(mapping))
	for dest, expr := range mapping {
		v, ok := Expand(root, expr)
		if !ok {
			continue
		}
		out[dest] = strings.TrimSpace(v)
	}
	return out
}

// Trigger resolves the trigger field. ok is false when the field is undefined.
func Trigger(root *Value, path string) (string, bool) {
	v, ok := Lookup(root, path)
	if !ok {
		return "", false
	}
	return v, true
}

// Finalize fills the mandatory ticket fields: a non-empty summary with the
// endpoint prefix applied, the source name, the alert message and a description.
func Finalize(root *Value, cfg *domain.EndpointConfig, fields domain.ResolvedFields, correlationID string) domain.ResolvedFields {
	out := fields.Clone()
	for k, v := range cfg.Defaults {
		if strings.TrimSpace(out[k]) == "" {
			out[k] = v
		}
	}

	source := SourceName(root)
	out[domain.FieldSourceName] = source

	msg := firstDefined(root, "$.msg", "$.message")
	if msg == "" {
		msg = "No message"
	}
	out[domain.FieldMessage] = msg

	out[domain.FieldSummary] = summary(cfg, out.Value(domain.FieldSummary), source)

	if strings.TrimSpace(out.Value(domain.FieldDescription)) == "" {
		out[domain.FieldDescription] = description(root, cfg, source, msg, correlationID)
	}
	return out
}

// SourceName returns the first of monitor.name, title, name, or the placeholder.
func SourceName(root *Value) string {
	if v := firstDefined(root, sourceNamePaths...); v != "" {
		return v
	}
	return domain.SummaryPlaceholder
}

func firstDefined(root *Value, paths ...string) string {
	for _, p := range paths {
		if v, ok := Lookup(root, p); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func summary(cfg *domain.EndpointConfig, mapped, source string) string {
	base := strings.TrimSpace(mapped)
	if base == "" {
		base = source
	}
	prefix := defaultTicketPrefix
	if cfg.TicketPrefix != nil {
		prefix = strings.TrimSpace(*cfg.TicketPrefix)
	}
	s := base
	if prefix != "" {
		s = prefix + " " + base
	}
	if cfg.SummaryRemoveStrings != "" {
		for _, r := range strings.Split(cfg.SummaryRemoveStrings, ",") {
			if r != "" {
				s = strings.ReplaceAll(s, r, "")
			}
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		s = domain.SummaryPlaceholder
	}
	if utf8.RuneCountInString(s) > maxSummaryLength {
		runes := []rune(s)
		s = string(runes[:maxSummaryLength-3]) + "..."
	}
	return s
}

func description(root *Value, cfg *domain.EndpointConfig, source, msg, correlationID string) string {
	masked := Masked(root)
	if tmpl := cfg.DescriptionTemplate; strings.TrimSpace(tmpl) != "" {
		r := strings.NewReplacer(
			"{{ monitor_name }}", source,
			"{{ msg }}", msg,
			"{{ request_id }}", correlationID,
		)
		return Substitute(masked, r.Replace(tmpl))
	}
	payload, err := json.Marshal(masked)
	if err != nil {
		payload = []byte("{}")
	}
	return "Source: " + source + "\n" +
		"Message: " + msg + "\n" +
		"Request ID: " + correlationID + "\n" +
		"Payload: " + string(payload)
}

// MaskedJSON renders the payload with secrets masked, for logs and tickets.
func MaskedJSON(root *Value) string {
	b, err := json.Marshal(Masked(root))
	if err != nil {
		return ""
	}
	return string(b)
}
