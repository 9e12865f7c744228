package conv

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AsInt64 attempts to coerce v into an int64.
func AsInt64(v any) (int64, bool) {
	switch actual := v.(type) {
	case int:
		return int64(actual), true
	case int32:
		return int64(actual), true
	case int64:
		return actual, true
	case uint:
		return int64(actual), true
	case uint64:
		if actual > math.MaxInt64 {
			return 0, false
		}
		return int64(actual), true
	case float32:
		return int64(actual), true
	case float64:
		return int64(actual), true
	case json.Number:
		if i, err := actual.Int64(); err == nil {
			return i, true
		}
		if f, err := actual.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		s := strings.TrimSpace(actual)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// AsString returns v as a trimmed string. Numbers are formatted; other types are
// rejected.
func AsString(v any) (string, bool) {
	switch actual := v.(type) {
	case string:
		s := strings.TrimSpace(actual)
		return s, s != ""
	case json.Number:
		return actual.String(), true
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64), true
	case int:
		return strconv.Itoa(actual), true
	case int64:
		return strconv.FormatInt(actual, 10), true
	}
	return "", false
}

// FirstString returns the first non empty string among keys.
func FirstString(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := AsString(args[key]); ok {
			return s
		}
	}
	return ""
}

// FirstInt64 returns the first numeric value among keys.
func FirstInt64(args map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		if v, ok := args[key]; ok && v != nil {
			if i, ok := AsInt64(v); ok {
				return i, true
			}
		}
	}
	return 0, false
}
