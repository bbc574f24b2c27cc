package resolver

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{(\$[^{}]*)\}`)
	tokenRe       = regexp.MustCompile(`\S+`)
)

// Expand resolves a mapping expression. Three forms are accepted:
//
//	$.monitor.name                     single path
//	Host {$.host} is {$.state}         brace placeholders, missing ones become ""
//	$.monitor.name down on $.host      whitespace tokens; "$" tokens are paths
//
// Each placeholder is resolved on its own against the payload.
func Expand(root *Value, expr string) (string, bool) {
	if placeholderRe.MatchString(expr) {
		return Substitute(root, expr), true
	}
	if strings.ContainsAny(strings.TrimSpace(expr), " \t") {
		return expandTokens(root, expr)
	}
	return Lookup(root, expr)
}

// expandTokens keeps literal tokens only when at least one path token resolved.
func expandTokens(root *Value, expr string) (string, bool) {
	tokens := tokenRe.FindAllString(expr, -1)
	parts := make([]string, 0, len(tokens))
	resolved := false
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "$") {
			parts = append(parts, tok)
			continue
		}
		v, ok := Lookup(root, tok)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		resolved = true
		parts = append(parts, v)
	}
	if !resolved {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// Substitute replaces every {$.path} placeholder in text and leaves the rest untouched.
func Substitute(root *Value, text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		v, _ := Lookup(root, m[1:len(m)-1])
		return v
	})
}
