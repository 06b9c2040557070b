package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Normalize converts the numeric representations produced by decoders and
// database drivers into int64 (integral values) or float64. Other values are
// returned unchanged.
func Normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return normalizeFloat(float64(n))
	case float64:
		return normalizeFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return n.String()
	case []byte:
		return string(n)
	default:
		return v
	}
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// AsInt returns v as an int64 when it is an integral number
func AsInt(v interface{}) (int64, bool) {
	i, ok := Normalize(v).(int64)
	return i, ok
}

func asFloat(v interface{}) (float64, bool) {
	switch n := Normalize(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Compare orders two scalar values. Numbers compare numerically, strings
// lexically, booleans false before true. ok is false when the values are not
// comparable; nil sorts before everything.
func Compare(a, b interface{}) (cmp int, ok bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	if fa, okA := asFloat(a); okA {
		fb, okB := asFloat(b)
		if !okB {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	switch va := a.(type) {
	case string:
		vb, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case bool:
		vb, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// Equal reports whether two scalar values are equal under Compare
func Equal(a, b interface{}) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Describe renders a value for error messages
func Describe(v interface{}) string {
	if v == nil {
		return "null"
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
