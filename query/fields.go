package query

import (
	"maps"
	"slices"
	"strings"
)

// ReferencedFields returns the sorted set of field paths q reads, looking
// through $and, $or and $not. Callers use it to fetch the extra fields a
// visibility filter needs without widening what they return.
func ReferencedFields(q map[string]any) []string {
	seen := make(map[string]struct{})
	collectFields(q, seen)
	return slices.Sorted(maps.Keys(seen))
}

func collectFields(q map[string]any, seen map[string]struct{}) {
	for key, val := range q {
		if !strings.HasPrefix(key, "$") {
			seen[key] = struct{}{}
			continue
		}
		switch v := val.(type) {
		case []any:
			for _, e := range v {
				if sub, ok := e.(map[string]any); ok {
					collectFields(sub, seen)
				}
			}
		case []map[string]any:
			for _, sub := range v {
				collectFields(sub, seen)
			}
		case map[string]any:
			collectFields(v, seen)
		}
	}
}
