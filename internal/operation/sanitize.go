package operation

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Sanitize converts arbitrary decoded input into plain JSON-compatible values:
// map[string]any, []any, string, float64, bool and nil. Typed maps, slices,
// pointers and structs are flattened; json.Number becomes float64 when it fits.
func Sanitize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Sanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e)
		}
		return out
	case []byte:
		return string(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Sanitize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Sanitize(rv.Elem().Interface())
	case reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return fmt.Sprint(v)
		}
		return generic
	}
	return fmt.Sprint(v)
}

// SanitizeMap is Sanitize for the common map case.
func SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := Sanitize(m).(map[string]any)
	return out
}
