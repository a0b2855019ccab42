// Package doc defines the schemaless record type shared by the store, the
// query compiler and the update engine, together with the value helpers
// they agree on: deep copy, equality and ordering.
//
// Nested values are always map[string]any and []any. Clone normalizes any
// other map or slice type into that shape, so the rest of the code never
// needs reflection to walk a record.
package doc

import (
	"reflect"
	"time"
)

// RowID is the reserved field uniquely identifying a record within its
// collection.
const RowID = "_id"

// Record is one stored document.
type Record = map[string]any

// ID returns the record's ROW_ID and whether it is a non-empty string.
func ID(r Record) (string, bool) {
	s, ok := r[RowID].(string)
	return s, ok && s != ""
}

// CloneRecord returns a deep, normalized copy of r.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out, _ := Clone(r).(map[string]any)
	return out
}

// Clone returns a deep copy of v. Maps keyed by strings become
// map[string]any and slices and arrays become []any; scalars are returned
// as is. []byte is kept as a copied byte slice.
func Clone(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, time.Time:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Clone(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any(nil)
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = Clone(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Clone(rv.Elem().Interface())
	default:
		return v
	}
}
