package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a JSONB column holding an arbitrary object.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
}

// GetString returns the string value for key, or "" when absent or not a string.
func (m JSONMap) GetString(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// GetFloat returns the numeric value for key. JSON numbers decode as float64.
func (m JSONMap) GetFloat(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// GetMap returns the nested object for key, or nil.
func (m JSONMap) GetMap(key string) JSONMap {
	switch v := m[key].(type) {
	case map[string]any:
		return JSONMap(v)
	case JSONMap:
		return v
	}
	return nil
}

// GetSlice returns the array value for key, or nil.
func (m JSONMap) GetSlice(key string) []any {
	if s, ok := m[key].([]any); ok {
		return s
	}
	return nil
}

// GetStrings returns the array value for key coerced to strings.
func (m JSONMap) GetStrings(key string) []string {
	raw := m.GetSlice(key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StringSlice is a JSONB column holding a string array.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", src)
	}
}
