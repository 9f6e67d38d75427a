package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params carries tool arguments as decoded from JSON or CLI flags.
// Values are strings, numbers, booleans or lists of those.
type Params map[string]any

// Has reports whether a non-empty value is present for key.
func (p Params) Has(key string) bool {
	value, ok := p[key]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	}
	return true
}

// String returns the value for key rendered as a string.
func (p Params) String(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(scalarString(value))
}

// Int returns the value for key as an integer, or fallback when absent.
func (p Params) Int(key string, fallback int) (int, error) {
	if !p.Has(key) {
		return fallback, nil
	}
	switch v := p[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return int(n), nil
	default:
		n, err := strconv.Atoi(p.String(key))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	}
}

// Bool returns the value for key as a boolean.
func (p Params) Bool(key string) bool {
	if !p.Has(key) {
		return false
	}
	switch v := p[key].(type) {
	case bool:
		return v
	default:
		switch strings.ToLower(p.String(key)) {
		case "1", "true", "y", "yes", "on":
			return true
		}
	}
	return false
}

// List returns the value for key as a list of strings. A single string is
// split on commas.
func (p Params) List(key string) []string {
	value, ok := p[key]
	if !ok || value == nil {
		return nil
	}

	var raw []string
	switch v := value.(type) {
	case []string:
		raw = v
	case []any:
		raw = make([]string, 0, len(v))
		for _, item := range v {
			raw = append(raw, scalarString(item))
		}
	case string:
		raw = strings.Split(v, ",")
	default:
		raw = []string{scalarString(v)}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
