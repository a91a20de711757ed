package models

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Filter is an exact-match predicate over metadata keys. An empty filter matches everything.
type Filter map[string]any

// TablesOnly matches documents flagged as containing a table.
func TablesOnly() Filter {
	return Filter{MetaHasTable: true}
}

// Matches reports whether every key in f is present in m with an equal value.
func (f Filter) Matches(m Metadata) bool {
	for key, want := range f {
		got, ok := m.Get(key)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Merge returns a new filter holding the keys of f and other; other wins on conflict.
func (f Filter) Merge(other Filter) Filter {
	if len(f) == 0 && len(other) == 0 {
		return nil
	}
	out := make(Filter, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String renders the filter with sorted keys, for logs.
func (f Filter) String() string {
	if len(f) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(toString(f[k]))
	}
	b.WriteByte('}')
	return b.String()
}

// valuesEqual compares metadata values. Numbers compare by value so that an int
// filter matches a float64 read back from JSON.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat64(a); ok {
		fb, ok := toFloat64(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
