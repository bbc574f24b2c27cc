package reconcile

import "github.com/spec-kit/alertbridge/internal/domain"

// ClassifyTrigger tests the normalized trigger value against the endpoint's
// value sets. Open wins when a value sits in both. An undefined trigger is unknown.
func ClassifyTrigger(cfg *domain.EndpointConfig, value string, defined bool) domain.TriggerKind {
	if !defined {
		return domain.TriggerUnknown
	}
	v := domain.NormalizeTrigger(value)
	if _, ok := cfg.OpenSet()[v]; ok {
		return domain.TriggerOpen
	}
	if _, ok := cfg.CloseSet()[v]; ok {
		return domain.TriggerClose
	}
	return domain.TriggerUnknown
}
