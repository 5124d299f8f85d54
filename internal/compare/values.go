package compare

import (
	"fmt"
	"reflect"
	"sort"
)

// Normalize converts v into a canonical tree of float64, string, bool, nil,
// []any and map[string]any so that values produced by different application
// generations (or decoded by different codecs) compare structurally.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	return normalizeValue(reflect.ValueOf(v))
}

func normalizeValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if d, ok := rv.Interface().(interface{ Seconds() float64 }); ok {
			return d.Seconds()
		}
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalizeValue(iter.Value())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out[t.Field(i).Name] = normalizeValue(rv.Field(i))
		}
		return out
	default:
		return fmt.Sprint(rv.Interface())
	}
}

// Flatten returns every number in v in depth-first order together with a
// shape signature (the length of each nested sequence in visiting order).
// Scalars, arrays and ordered tuples of arrays are accepted.
func Flatten(v any) ([]float64, []int, error) {
	var values []float64
	var shape []int
	var walk func(x any) error
	walk = func(x any) error {
		switch t := x.(type) {
		case float64:
			values = append(values, t)
		case []any:
			shape = append(shape, len(t))
			for _, e := range t {
				if err := walk(e); err != nil {
					return err
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			shape = append(shape, len(t))
			for _, k := range keys {
				if err := walk(t[k]); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("non-numeric value %v (%T)", x, x)
		}
		return nil
	}
	if err := walk(Normalize(v)); err != nil {
		return nil, nil, err
	}
	return values, shape, nil
}

// ToFloats converts a numeric sequence to []float64.
func ToFloats(v any) ([]float64, error) {
	n, ok := Normalize(v).([]any)
	if !ok {
		return nil, fmt.Errorf("expected a numeric sequence, got %T", v)
	}
	out := make([]float64, len(n))
	for i, e := range n {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not numeric (%T)", i, e)
		}
		out[i] = f
	}
	return out, nil
}

// ToFloat converts a numeric scalar to float64.
func ToFloat(v any) (float64, error) {
	f, ok := Normalize(v).(float64)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	return f, nil
}
