package normalize

import (
	"encoding/json"
	"math"
	"strings"
)

// object is a decoded JSON object with loosely typed members
type object map[string]any

func decodeObject(raw []byte) (object, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// has reports whether key is present and not null
func (o object) has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

func (o object) child(key string) (object, bool) {
	m, ok := o[key].(map[string]any)
	return m, ok
}

func (o object) num(key string) (float64, bool) {
	f, ok := o[key].(float64)
	return f, ok
}

func (o object) floatOr(key string, fallback float64) float64 {
	if f, ok := o.num(key); ok {
		return f
	}
	return fallback
}

func (o object) intOr(key string, fallback int) int {
	if f, ok := o.num(key); ok {
		return int(f)
	}
	return fallback
}

func (o object) stringOr(key string, fallback string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return fallback
}

// nonEmptyOr returns the member when it is a non-empty string
func (o object) nonEmptyOr(key string, fallback string) string {
	if s, ok := o[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func (o object) boolean(key string) (bool, bool) {
	b, ok := o[key].(bool)
	return b, ok
}

// truthy reports whether the member would coerce to true: present and not
// null, false, zero, NaN or the empty string.
func (o object) truthy(key string) bool {
	switch v := o[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return true
	}
}

func (o object) ints(key string) ([]int, bool) {
	arr, ok := o[key].([]any)
	if !ok {
		return nil, false
	}

	out := make([]int, len(arr))
	for i, v := range arr {
		if f, ok := v.(float64); ok {
			out[i] = int(f)
		}
	}
	return out, true
}

func (o object) length(key string) int {
	arr, ok := o[key].([]any)
	if !ok {
		return 0
	}
	return len(arr)
}

func upper(s string) string {
	return strings.ToUpper(s)
}
