package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Reader reads nested settings by slash-delimited path, such as
// "settings/overwrite-duplicates", falling back to a default
type Reader struct {
	values map[string]any
}

// NewReader wraps a nested settings map
func NewReader(values map[string]any) *Reader {
	if values == nil {
		values = map[string]any{}
	}
	return &Reader{values: values}
}

// Lookup returns the value at path and whether it exists
func (r *Reader) Lookup(path string) (any, bool) {
	var cur any = r.values
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			if v, ok = m[strings.ToLower(seg)]; !ok {
				return nil, false
			}
		}
		cur = v
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[cast.ToString(k)] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// Get returns the value at path, or def when it is missing
func (r *Reader) Get(path string, def any) any {
	if v, ok := r.Lookup(path); ok && v != nil {
		return v
	}
	return def
}

// Bool returns the boolean at path, or def when missing or not a boolean
func (r *Reader) Bool(path string, def bool) bool {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// String returns the string at path, or def when missing
func (r *Reader) String(path, def string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Int returns the integer at path, or def when missing or not numeric
func (r *Reader) Int(path string, def int) int {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Strings returns the list at path. A single string becomes a one-element
// list.
func (r *Reader) Strings(path string, def []string) []string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return []string{s}
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return def
	}
	return out
}

// Duration returns the duration at path. Bare numbers are seconds; strings
// use time.ParseDuration syntax.
func (r *Reader) Duration(path string, def time.Duration) time.Duration {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return def
		}
		return d
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
