package strategy

import (
	"maps"
	"strings"

	"github.com/spf13/cast"
)

// nestedSettingsKey holds indicator settings sent as a nested map
const nestedSettingsKey = "indicator_settings"

// Options is the configuration bag a strategy is built from. Keys may be
// flat or nested under "indicator_settings"; flat keys win. Unknown keys
// are ignored.
type Options map[string]any

func (o Options) lookup(key string) (any, bool) {
	if v, ok := o[key]; ok && v != nil {
		return v, true
	}
	if nested, ok := o[nestedSettingsKey]; ok {
		if m, err := cast.ToStringMapE(nested); err == nil {
			if v, ok := m[key]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// Float returns the first present key converted to float64, or def
func (o Options) Float(def float64, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := o.lookup(key); ok {
			if f, err := cast.ToFloat64E(v); err == nil {
				return f
			}
		}
	}
	return def
}

// Int returns the first present key converted to int, or def
func (o Options) Int(def int, keys ...string) int {
	for _, key := range keys {
		if v, ok := o.lookup(key); ok {
			if i, err := cast.ToIntE(v); err == nil {
				return i
			}
		}
	}
	return def
}

// Bool returns the first present key converted to bool, or def
func (o Options) Bool(def bool, keys ...string) bool {
	for _, key := range keys {
		if v, ok := o.lookup(key); ok {
			if b, err := cast.ToBoolE(v); err == nil {
				return b
			}
		}
	}
	return def
}

// String returns the first present key as a lower-cased string, or def
func (o Options) String(def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := o.lookup(key); ok {
			if s, err := cast.ToStringE(v); err == nil && s != "" {
				return strings.ToLower(s)
			}
		}
	}
	return def
}

// Strings returns the first present key as a string slice, or def
func (o Options) Strings(def []string, keys ...string) []string {
	for _, key := range keys {
		if v, ok := o.lookup(key); ok {
			if s, err := cast.ToStringSliceE(v); err == nil && len(s) > 0 {
				return s
			}
		}
	}
	return def
}

// Sub returns the options nested under key, empty when absent
func (o Options) Sub(key string) Options {
	if v, ok := o[key]; ok {
		if m, err := cast.ToStringMapE(v); err == nil {
			return Options(m)
		}
	}
	return Options{}
}

// Merge returns a copy of o overlaid with other
func (o Options) Merge(other Options) Options {
	merged := make(Options, len(o)+len(other))
	maps.Copy(merged, o)
	maps.Copy(merged, other)
	return merged
}
