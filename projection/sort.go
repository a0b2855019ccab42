package projection

import (
	"slices"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// SortKey names a field to sort by.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc is a convenience constructor for an ascending key.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc is a convenience constructor for a descending key.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// ApplySortFieldsLimit sorts records, keeps at most limit of them (limit
// <= 0 keeps all) and projects each one, always in that order.
//
// Records are compared on the tuple of all sort fields, but only the
// direction of the first key is honoured and it applies to the whole
// tuple: [Desc("a"), Asc("b")] sorts by (a, b) descending.
func ApplySortFieldsLimit(records []doc.Record, sort []SortKey, limit int, fields Fields) []doc.Record {
	if len(sort) > 0 {
		dir := 1
		if sort[0].Desc {
			dir = -1
		}
		slices.SortStableFunc(records, func(a, b doc.Record) int {
			for _, k := range sort {
				av, _ := dotpath.Get(a, k.Field)
				bv, _ := dotpath.Get(b, k.Field)
				if c := doc.SortCompare(av, bv); c != 0 {
					return dir * c
				}
			}
			return 0
		})
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]doc.Record, len(records))
	for i, r := range records {
		out[i] = fields.Apply(r)
	}
	return out
}
