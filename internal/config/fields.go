package config

import (
	"fmt"
	"math"
	"strings"

	"zbackup/internal/zb"
)

// The helpers below read one field of a loosely-typed mapping. A missing
// field yields the default silently; a present field of the wrong type
// yields the default and a warning.

func section(raw map[string]any, key string, logger zb.Logger) map[string]any {
	v, ok := raw[key]
	if !ok || v == nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		logger.Warn("config section is not a mapping, using defaults", "key", key, "value", v)
		return map[string]any{}
	}
	return m
}

func intField(raw map[string]any, key string, def int, logger zb.Logger) int {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	n, ok := toInt(v)
	if !ok {
		logger.Warn("config value is not an integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// nonNegativeIntField is intField with negative values replaced by def.
func nonNegativeIntField(raw map[string]any, key string, def int, logger zb.Logger) int {
	n := intField(raw, key, def, logger)
	if n < 0 {
		logger.Warn("config value must not be negative, using default", "key", key, "value", n, "default", def)
		return def
	}
	return n
}

func boolField(raw map[string]any, key string, def bool, logger zb.Logger) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// 0 and 1 are accepted as false and true.
	if n, ok := toInt(v); ok && (n == 0 || n == 1) {
		return n == 1
	}
	logger.Warn("config value is not a boolean, using default", "key", key, "value", v, "default", def)
	return def
}

func stringField(raw map[string]any, key string, def string, logger zb.Logger) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		logger.Warn("config value is not a string, using default", "key", key, "value", v, "default", def)
		return def
	}
	return strings.TrimSpace(s)
}

// stringListField accepts a single string or a list of strings. Non-string
// list items are dropped with a warning.
func stringListField(raw map[string]any, key string, logger zb.Logger) []string {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}

	var out []string
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				logger.Warn("config list item is not a string, skipping", "key", key, "value", item)
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		logger.Warn("config value is not a string or list, ignoring", "key", key, "value", v)
	}
	return out
}

// oneOfField is stringField restricted to a set of lowercase choices.
func oneOfField(raw map[string]any, key string, def string, choices []string, logger zb.Logger) string {
	s := strings.ToLower(stringField(raw, key, def, logger))
	for _, c := range choices {
		if s == c {
			return s
		}
	}
	logger.Warn("config value is not one of the allowed values, using default", "key", key, "value", s, "allowed", choices, "default", def)
	return def
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func requiredError(key string) error {
	return fmt.Errorf("%w: %q is required", ErrInvalid, key)
}
