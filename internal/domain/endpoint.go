package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WindowType enumerates maintenance window kinds.
type WindowType string

const (
	WindowAlways WindowType = "always"
	WindowDaily  WindowType = "daily"
	WindowWeekly WindowType = "weekly"
	WindowOnce   WindowType = "once"
)

// EndpointConfig describes how payloads arriving on one endpoint become ticket actions.
type EndpointConfig struct {
	ID                   string              `json:"id" yaml:"id"`
	Name                 string              `json:"name" yaml:"name"`
	Enabled              bool                `json:"enabled" yaml:"enabled"`
	TriggerField         string              `json:"trigger_field" yaml:"trigger_field"`
	OpenValues           []string            `json:"open_values" yaml:"open_values"`
	CloseValues          []string            `json:"close_values" yaml:"close_values"`
	Mapping              map[string]string   `json:"mapping" yaml:"mapping"`
	RoutingRules         []RoutingRule       `json:"routing_rules" yaml:"routing_rules"`
	MaintenanceWindows   []MaintenanceWindow `json:"maintenance_windows" yaml:"maintenance_windows"`
	RetryPolicy          RetryPolicy         `json:"retry_policy" yaml:"retry_policy"`
	KeyFields            []string            `json:"key_fields,omitempty" yaml:"key_fields,omitempty"`
	TicketPrefix         *string             `json:"ticket_prefix,omitempty" yaml:"ticket_prefix,omitempty"`
	SummaryRemoveStrings string              `json:"summary_remove_strings,omitempty" yaml:"summary_remove_strings,omitempty"`
	DescriptionTemplate  string              `json:"description_template,omitempty" yaml:"description_template,omitempty"`
	DefaultCompany       string              `json:"default_company,omitempty" yaml:"default_company,omitempty"`
	GlobalRoutingEnabled bool                `json:"global_routing_enabled,omitempty" yaml:"global_routing_enabled,omitempty"`
	Defaults             map[string]string   `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Annotation           AnnotationConfig    `json:"annotation" yaml:"annotation"`
}

// RoutingRule overrides destination fields when SourcePath matches Regex.
type RoutingRule struct {
	SourcePath string            `json:"source_path" yaml:"source_path"`
	Regex      string            `json:"regex" yaml:"regex"`
	Overrides  map[string]string `json:"overrides" yaml:"overrides"`
}

// MaintenanceWindow is a time range during which events are suppressed.
// Start and End are "HH:MM" for daily/weekly windows and RFC3339 instants for once windows.
type MaintenanceWindow struct {
	Type  WindowType `json:"type" yaml:"type"`
	Start string     `json:"start,omitempty" yaml:"start,omitempty"`
	End   string     `json:"end,omitempty" yaml:"end,omitempty"`
	Days  []string   `json:"days,omitempty" yaml:"days,omitempty"`
}

// RetryPolicy bounds retries of ticketing calls. Delays are expressed in seconds.
type RetryPolicy struct {
	MaxAttempts        int     `json:"max_attempts" yaml:"max_attempts"`
	BaseDelaySeconds   float64 `json:"base_delay" yaml:"base_delay"`
	MaxDelaySeconds    float64 `json:"max_delay" yaml:"max_delay"`
	CallTimeoutSeconds float64 `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
}

// AnnotationConfig enables best-effort enrichment notes on new tickets.
type AnnotationConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

const (
	DefaultTriggerField = "heartbeat.status"
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultCallTimeout  = 30 * time.Second
)

// ApplyDefaults fills unset fields with the values used when an endpoint is created without them.
func (c *EndpointConfig) ApplyDefaults() {
	if strings.TrimSpace(c.TriggerField) == "" {
		c.TriggerField = DefaultTriggerField
	}
	if len(c.OpenValues) == 0 {
		c.OpenValues = []string{"0"}
	}
	if len(c.CloseValues) == 0 {
		c.CloseValues = []string{"1"}
	}
	if c.RetryPolicy.MaxAttempts <= 0 {
		c.RetryPolicy.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryPolicy.BaseDelaySeconds <= 0 {
		c.RetryPolicy.BaseDelaySeconds = DefaultBaseDelay.Seconds()
	}
	if c.RetryPolicy.MaxDelaySeconds <= 0 {
		c.RetryPolicy.MaxDelaySeconds = DefaultMaxDelay.Seconds()
	}
	if c.RetryPolicy.CallTimeoutSeconds <= 0 {
		c.RetryPolicy.CallTimeoutSeconds = DefaultCallTimeout.Seconds()
	}
}

// Validate reports configuration errors that would make every event on the endpoint fail.
func (c *EndpointConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if c.RetryPolicy.MaxDelaySeconds < c.RetryPolicy.BaseDelaySeconds {
		errs = append(errs, errors.New("retry_policy.max_delay must be >= base_delay"))
	}
	for i, rule := range c.RoutingRules {
		if strings.TrimSpace(rule.SourcePath) == "" || strings.TrimSpace(rule.Regex) == "" {
			errs = append(errs, fmt.Errorf("routing_rules[%d]: source_path and regex are required", i))
		}
	}
	for i, w := range c.MaintenanceWindows {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("maintenance_windows[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the window's time fields parse for its type.
func (w MaintenanceWindow) Validate() error {
	switch w.Type {
	case WindowAlways:
		return nil
	case WindowDaily, WindowWeekly:
		if _, err := ParseClock(w.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		if _, err := ParseClock(w.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
		if w.Type == WindowWeekly && len(w.Days) == 0 {
			return errors.New("weekly window needs days")
		}
		return nil
	case WindowOnce:
		start, err := time.Parse(time.RFC3339, w.Start)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			return fmt.Errorf("end: %w", err)
		}
		if !end.After(start) {
			return errors.New("end must be after start")
		}
		return nil
	default:
		return fmt.Errorf("unknown window type %q", w.Type)
	}
}

// ParseClock parses "HH:MM" (or "HH:MM:SS") into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", value)
}

// BaseDelay returns the initial backoff.
func (p RetryPolicy) BaseDelay() time.Duration {
	return seconds(p.BaseDelaySeconds)
}

// MaxDelay caps the exponential backoff.
func (p RetryPolicy) MaxDelay() time.Duration {
	return seconds(p.MaxDelaySeconds)
}

// CallTimeout bounds a single ticketing call.
func (p RetryPolicy) CallTimeout() time.Duration {
	if p.CallTimeoutSeconds <= 0 {
		return DefaultCallTimeout
	}
	return seconds(p.CallTimeoutSeconds)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// OpenSet returns the normalized open trigger values.
func (c *EndpointConfig) OpenSet() map[string]struct{} {
	return valueSet(c.OpenValues)
}

// CloseSet returns the normalized close trigger values.
func (c *EndpointConfig) CloseSet() map[string]struct{} {
	return valueSet(c.CloseValues)
}

// NormalizeTrigger trims and case-folds a trigger value for set membership.
func NormalizeTrigger(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// valueSet accepts list entries that are themselves comma separated.
func valueSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, entry := range values {
		for _, part := range strings.Split(entry, ",") {
			if v := NormalizeTrigger(part); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// Clone returns a deep copy so a snapshot is never mutated by later config edits.
func (c *EndpointConfig) Clone() *EndpointConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.OpenValues = append([]string(nil), c.OpenValues...)
	out.CloseValues = append([]string(nil), c.CloseValues...)
	out.KeyFields = append([]string(nil), c.KeyFields...)
	out.Mapping = cloneMap(c.Mapping)
	out.Defaults = cloneMap(c.Defaults)
	out.RoutingRules = make([]RoutingRule, len(c.RoutingRules))
	for i, r := range c.RoutingRules {
		out.RoutingRules[i] = RoutingRule{SourcePath: r.SourcePath, Regex: r.Regex, Overrides: cloneMap(r.Overrides)}
	}
	out.MaintenanceWindows = make([]MaintenanceWindow, len(c.MaintenanceWindows))
	for i, w := range c.MaintenanceWindows {
		w.Days = append([]string(nil), w.Days...)
		out.MaintenanceWindows[i] = w
	}
	if c.TicketPrefix != nil {
		prefix := *c.TicketPrefix
		out.TicketPrefix = &prefix
	}
	return &out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
