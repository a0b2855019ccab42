package doc

import (
	"cmp"
	"reflect"
	"time"
)

// IsNumber reports whether v is an integer or floating point value.
// Booleans are not numbers here; see AsNumber.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// AsNumber converts integers, floats and booleans to float64.
func AsNumber(v any) (float64, bool) {
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
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsInt64 converts an integral value (or bool) to int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true //nolint:gosec // record counters never approach the overflow range
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true //nolint:gosec // see above
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case float32:
		if n == float32(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// Equal compares two values. Numbers compare by value regardless of their
// Go type so records survive a round trip through a codec; everything else
// uses deep equality.
func Equal(a, b any) bool {
	if IsNumber(a) && IsNumber(b) {
		x, _ := AsNumber(a)
		y, _ := AsNumber(b)
		return x == y
	}
	switch x := a.(type) {
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two non-nil values of compatible kinds: numbers with
// numbers, strings with strings, booleans with booleans, times with times
// and lists element-wise. ok is false when the values cannot be ordered.
func Compare(a, b any) (int, bool) {
	if IsNumber(a) && IsNumber(b) {
		x, _ := AsNumber(a)
		y, _ := AsNumber(b)
		return cmp.Compare(x, y), true
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case []any:
		if y, ok := b.([]any); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				c, ok := Compare(x[i], y[i])
				if !ok {
					return 0, false
				}
				if c != 0 {
					return c, true
				}
			}
			return cmp.Compare(len(x), len(y)), true
		}
	}
	return 0, false
}

// rank gives every value kind a slot in the total order used by SortCompare.
func rank(v any) int {
	switch {
	case v == nil:
		return 0
	case IsNumber(v):
		return 2
	}
	switch v.(type) {
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	case []any:
		return 5
	case map[string]any:
		return 6
	}
	return 7
}

// SortCompare is a total order over arbitrary values used for sorting
// records: nil first, then booleans, numbers, strings, times, lists, maps
// and anything else. Values of the same kind use Compare.
func SortCompare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	return 0
}
