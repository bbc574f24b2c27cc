package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segWildcard
)

type segment struct {
	kind      segmentKind
	key       string
	index     int
	recursive bool
}

// Path is a compiled path expression.
type Path struct {
	expr     string
	segments []segment
}

func (p Path) String() string {
	return p.expr
}

// Compile parses dot-separated keys, bracket indices or quoted keys, the "*"
// wildcard and ".." recursive descent. A leading "$" is optional.
func Compile(expr string) (Path, error) {
	src := strings.TrimSpace(expr)
	p := Path{expr: src}
	s := strings.TrimPrefix(src, "$")
	if s != src && s == "" {
		return p, nil
	}
	if s == "" {
		return p, fmt.Errorf("empty path")
	}
	// Bare "a.b" form.
	if s[0] != '.' && s[0] != '[' {
		s = "." + s
	}

	for i := 0; i < len(s); {
		recursive := false
		switch s[i] {
		case '.':
			if strings.HasPrefix(s[i:], "..") {
				recursive = true
				i += 2
			} else {
				i++
			}
			if i >= len(s) {
				return p, fmt.Errorf("path %q ends with '.'", expr)
			}
			if s[i] == '[' {
				seg, n, err := parseBracket(s[i:])
				if err != nil {
					return p, fmt.Errorf("path %q: %w", expr, err)
				}
				seg.recursive = recursive
				p.segments = append(p.segments, seg)
				i += n
				continue
			}
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' {
				end++
			}
			name := s[i:end]
			if name == "" {
				return p, fmt.Errorf("path %q has an empty key", expr)
			}
			seg := segment{kind: segKey, key: name, recursive: recursive}
			if name == "*" {
				seg = segment{kind: segWildcard, recursive: recursive}
			}
			p.segments = append(p.segments, seg)
			i = end
		case '[':
			seg, n, err := parseBracket(s[i:])
			if err != nil {
				return p, fmt.Errorf("path %q: %w", expr, err)
			}
			p.segments = append(p.segments, seg)
			i += n
		default:
			return p, fmt.Errorf("path %q: unexpected %q at %d", expr, s[i], i)
		}
	}
	return p, nil
}

// parseBracket parses "[0]", "[*]", "['key']" or "[\"key\"]" and returns the consumed length.
func parseBracket(s string) (segment, int, error) {
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return segment{}, 0, fmt.Errorf("unterminated '['")
	}
	inner := strings.TrimSpace(s[1:end])
	switch {
	case inner == "*":
		return segment{kind: segWildcard}, end + 1, nil
	case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
		return segment{kind: segKey, key: inner[1 : len(inner)-1]}, end + 1, nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return segment{}, 0, fmt.Errorf("invalid index %q", inner)
	}
	return segment{kind: segIndex, index: n}, end + 1, nil
}

// Find returns the first node the path selects, in document order.
func (p Path) Find(root *Value) (*Value, bool) {
	if root == nil {
		return nil, false
	}
	nodes := []*Value{root}
	for _, seg := range p.segments {
		var next []*Value
		for _, n := range nodes {
			if seg.recursive {
				walk(n, func(d *Value) {
					next = append(next, seg.apply(d)...)
				})
				continue
			}
			next = append(next, seg.apply(n)...)
		}
		if len(next) == 0 {
			return nil, false
		}
		nodes = next
	}
	return nodes[0], true
}

func (s segment) apply(v *Value) []*Value {
	switch s.kind {
	case segKey:
		if child, ok := v.Field(s.key); ok {
			return []*Value{child}
		}
	case segIndex:
		if child, ok := v.Index(s.index); ok {
			return []*Value{child}
		}
	case segWildcard:
		return v.Children()
	}
	return nil
}

// walk visits v and all its descendants in pre-order.
func walk(v *Value, fn func(*Value)) {
	fn(v)
	for _, c := range v.Children() {
		walk(c, fn)
	}
}

// Lookup compiles expr and renders the selected value. Malformed expressions
// and missing or null values are undefined; it never fails.
func Lookup(root *Value, expr string) (string, bool) {
	p, err := Compile(expr)
	if err != nil {
		return "", false
	}
	v, ok := p.Find(root)
	if !ok {
		return "", false
	}
	return v.Text()
}
