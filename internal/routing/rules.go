// Package routing applies ordered override rules and resolves the owning company.
package routing

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/resolver"
)

// Result is the outcome of evaluating an endpoint's rules for one event.
type Result struct {
	Fields   domain.ResolvedFields
	Matched  []string
	Warnings []string
	// Drop is set when the merged overrides carry drop=true.
	Drop bool
}

// Engine evaluates routing rules. Compiled patterns are cached across events.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewEngine returns an engine with an empty pattern cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*regexp.Regexp)}
}

// Apply evaluates rules strictly in order. Every matching rule merges its
// overrides into an accumulator, so a later rule wins on the same field.
// The accumulator is merged over fields; fields itself is not modified.
// An invalid pattern or an undefined source never fails the event: the rule
// is treated as non-matching and a warning is recorded.
func (e *Engine) Apply(root *resolver.Value, fields domain.ResolvedFields, rules []domain.RoutingRule) Result {
	res := Result{}
	acc := map[string]string{}

	for i, rule := range rules {
		source, ok := ruleSource(root, fields, rule.SourcePath)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rule %d: source %q is undefined", i, rule.SourcePath))
			continue
		}
		re, err := e.compile(rule.Regex)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rule %d: invalid regex %q: %v", i, rule.Regex, err))
			continue
		}
		if !re.MatchString(source) {
			continue
		}
		for k, v := range rule.Overrides {
			acc[k] = v
		}
		res.Matched = append(res.Matched, fmt.Sprintf("%s=~%s", rule.SourcePath, rule.Regex))
	}

	res.Fields = fields.Clone()
	for k, v := range acc {
		res.Fields[k] = v
	}
	res.Drop = strings.EqualFold(strings.TrimSpace(acc[domain.FieldDrop]), "true")
	return res
}

// ruleSource reads an already-resolved destination field when the source path
// names one, otherwise resolves the path freshly against the payload.
func ruleSource(root *resolver.Value, fields domain.ResolvedFields, sourcePath string) (string, bool) {
	if v, ok := fields.Get(sourcePath); ok {
		return v, true
	}
	return resolver.Lookup(root, sourcePath)
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.cache[pattern]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[pattern] = re
	e.mu.Unlock()
	return re, nil
}
