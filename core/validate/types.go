package validate

import (
	"context"
	"encoding/json"
	"reflect"
)

// String passes for string values.
func String() Validator {
	return Func(func(v any) bool {
		_, ok := v.(string)
		return ok
	})
}

// Number passes for any numeric value, including NaN.
func Number() Validator {
	return Func(func(v any) bool {
		_, ok := asNumber(v)
		return ok
	})
}

// Boolean passes for bool values.
func Boolean() Validator {
	return Func(func(v any) bool {
		_, ok := v.(bool)
		return ok
	})
}

// Null passes only for an explicit null. A missing value is not null.
func Null() Validator {
	return Func(func(v any) bool {
		return v == nil
	})
}

// Enum passes when the value strictly equals one of values.
func Enum(values ...any) Validator {
	return Func(func(v any) bool {
		for _, candidate := range values {
			if strictEqual(v, candidate) {
				return true
			}
		}
		return false
	})
}

// Array passes for arrays whose elements all satisfy elem and, as a whole,
// satisfy whole. Either validator may be nil. The first failing element's
// result is returned as is.
func Array(elem, whole Validator) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		items, ok := asSlice(value)
		if !ok {
			return Fail()
		}
		if elem != nil {
			for _, item := range items {
				if res := elem(ctx, item, tree); !res.OK() {
					return res
				}
			}
		}
		if whole != nil {
			return whole(ctx, value, tree)
		}
		return Pass()
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		// raw bytes are not an array value
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// asNumber reports v as a float64 when its runtime type is numeric.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// strictEqual compares primitives by value. Objects and arrays are never equal
// to anything, matching identity semantics for decoded values.
func strictEqual(a, b any) bool {
	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		return ok && fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
