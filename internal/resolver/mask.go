package resolver

import "strings"

const maskedValue = "***"

var secretMarkers = []string{"password", "secret", "token", "api_key", "apikey", "authorization"}

// Masked returns a copy of v with values under secret-looking keys replaced.
func Masked(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case KindObject:
		out := &Value{Kind: KindObject, Members: make([]Member, 0, len(v.Members))}
		for _, m := range v.Members {
			if isSecretKey(m.Key) {
				out.Members = append(out.Members, Member{Key: m.Key, Value: &Value{Kind: KindString, Str: maskedValue}})
				continue
			}
			out.Members = append(out.Members, Member{Key: m.Key, Value: Masked(m.Value)})
		}
		return out
	case KindArray:
		out := &Value{Kind: KindArray, Items: make([]*Value, 0, len(v.Items))}
		for _, item := range v.Items {
			out.Items = append(out.Items, Masked(item))
		}
		return out
	}
	cp := *v
	return &cp
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range secretMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}
