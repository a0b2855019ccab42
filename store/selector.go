package store

import (
	"fmt"
	"strings"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/update"
)

// Selector is a parsed Update/Delete selector. Exactly one of RowID and
// Query is meaningful: a non-empty RowID addresses a single record.
type Selector struct {
	RowID string
	Query map[string]any
}

// ParseSelector accepts a ROW_ID string or a query document. A query whose
// only key is an equality on ROW_ID is turned into a ROW_ID selector so
// backends can look it up directly.
func ParseSelector(sel any) (Selector, error) {
	switch s := sel.(type) {
	case string:
		if s == "" {
			return Selector{}, fmt.Errorf("%w: empty row id", ErrBadSelector)
		}
		return Selector{RowID: s}, nil
	case nil:
		return Selector{Query: map[string]any{}}, nil
	case map[string]any:
		if rowID, ok := RowIDOnly(s); ok {
			return Selector{RowID: rowID}, nil
		}
		return Selector{Query: s}, nil
	}
	return Selector{}, fmt.Errorf("%w: got %T", ErrBadSelector, sel)
}

// RowIDOnly reports whether q is exactly {"_id": <string>}.
func RowIDOnly(q map[string]any) (string, bool) {
	if len(q) != 1 {
		return "", false
	}
	rowID, ok := q[doc.RowID].(string)
	return rowID, ok && rowID != ""
}

// Upserted synthesizes the record inserted by an upsert that matched
// nothing. A ROW_ID selector becomes the new record's id. Query selectors
// seed the record with their plain equality fields so it matches the query
// it was created for.
func (s Selector) Upserted() doc.Record {
	rec := doc.Record{}
	if s.RowID != "" {
		rec[doc.RowID] = s.RowID
		return rec
	}
	var seed map[string]any
	for k, v := range s.Query {
		if strings.HasPrefix(k, "$") || isOperatorDoc(v) {
			continue
		}
		if seed == nil {
			seed = map[string]any{}
		}
		seed[k] = doc.Clone(v)
	}
	if seed != nil {
		// Seeding only sets fields; it cannot fail on a fresh record.
		_ = update.Apply(rec, seed)
	}
	return rec
}

// PrepareInsert deep-copies d and stamps a fresh ROW_ID when it has none.
func PrepareInsert(d doc.Record) (doc.Record, string) {
	rec := doc.CloneRecord(d)
	if rec == nil {
		rec = doc.Record{}
	}
	rowID, ok := doc.ID(rec)
	if !ok {
		rowID = id.NewRecordID().String()
		rec[doc.RowID] = rowID
	}
	return rec, rowID
}

// Merge returns prior with every top-level field of d copied over it. It
// rejects directive-shaped replacements.
func Merge(prior, d doc.Record) (doc.Record, error) {
	for k := range d {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("%w: %q", ErrDirectiveInReplace, k)
		}
	}
	out := doc.CloneRecord(prior)
	if out == nil {
		out = doc.Record{}
	}
	for k, v := range d {
		if k == doc.RowID {
			continue
		}
		out[k] = doc.Clone(v)
	}
	return out, nil
}

func isOperatorDoc(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}
