package query

import "github.com/xraph/docket/doc"

// lt is false whenever either side is nil.
func lt(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	c, ok := doc.Compare(a, b)
	return ok && c < 0
}

// lte treats nil as equal only to nil.
func lte(a, b any) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	}
	c, ok := doc.Compare(a, b)
	return ok && c <= 0
}

// listAwareEqual is the equality used for literal query values: a list and
// a scalar match when the list contains the scalar (either side may be the
// list), two lists match when they share an element, and anything else
// falls back to plain equality.
func listAwareEqual(have, want any) bool {
	hl, haveList := have.([]any)
	wl, wantList := want.([]any)
	switch {
	case haveList && wantList:
		for _, h := range hl {
			if contains(wl, h) {
				return true
			}
		}
		return false
	case haveList:
		return contains(hl, want)
	case wantList:
		return contains(wl, have)
	}
	return doc.Equal(have, want)
}

func contains(list []any, v any) bool {
	for _, e := range list {
		if doc.Equal(e, v) {
			return true
		}
	}
	return false
}
