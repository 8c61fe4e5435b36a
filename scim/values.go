package scim

import (
	"reflect"
	"strings"
	"time"
)

// ============================================================
// JSON Value Helpers
// ============================================================
//
// All coercion and matching operates on the decoded-JSON value model:
// map[string]any, []any, string, float64, bool, nil. Callers that hand us
// typed slices or integers get normalized first.

// NormalizeValue converts typed slices and integer kinds into the
// decoded-JSON value model
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			if ks, ok := k.Interface().(string); ok {
				out[ks] = NormalizeValue(rv.MapIndex(k).Interface())
			}
		}
		return out
	}
	return value
}

// LookupKey finds a map entry by case-insensitive key
func LookupKey(data map[string]any, name string) (any, bool) {
	if v, ok := data[name]; ok {
		return v, true
	}
	lower := strings.ToLower(name)
	for k, v := range data {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}

// DeepCopyValue clones a decoded-JSON value so callers cannot mutate
// internal state through shared references
func DeepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = DeepCopyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = DeepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// DeepEqualValue compares decoded-JSON values structurally. Numbers compare
// numerically across integer kinds, including inside nested collections and
// complex values, which NormalizeValue leaves untouched at the top level.
func DeepEqualValue(a, b any) bool {
	a = NormalizeValue(a)
	b = NormalizeValue(b)
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, found := bv[k]
			if !found || !DeepEqualValue(ae, be) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqualValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// valueTypeName names the SCIM-visible type of a raw value, used in
// coercion error messages
func valueTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int32, int64, float32:
		return "number"
	case time.Time:
		return "dateTime"
	case []any:
		return "collection"
	case map[string]any:
		return "complex"
	default:
		return reflect.TypeOf(value).String()
	}
}

// IsEmptyValue reports whether a coerced value carries no actual content:
// nil, an empty collection, or a complex value whose leaves are all empty
func IsEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []any:
		for _, e := range v {
			if !IsEmptyValue(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range v {
			if !IsEmptyValue(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
