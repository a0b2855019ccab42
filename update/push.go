package update

import (
	"fmt"
	"maps"
	"slices"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// Modifiers of the extended $push form.
const (
	modEach  = "$each"
	modSort  = "$sort"
	modSlice = "$slice"
)

// push appends operand to the list at path. The extended form
// {"$each": [...], "$sort": spec, "$slice": n} appends every element,
// optionally re-sorts the whole list, then keeps the first n (n >= 0) or
// the last -n (n < 0) elements. A missing or null target starts as an
// empty list.
func push(rec doc.Record, path string, operand any) error {
	acc, ok := dotpath.Resolve(rec, path, dotpath.Options{Create: true})
	if !ok {
		return nil
	}

	var list []any
	switch cur := acc.Get().(type) {
	case nil:
	case []any:
		list = slices.Clone(cur)
	default:
		return fmt.Errorf("%w: %q holds %T", ErrNotAList, path, cur)
	}

	ext, extended := operand.(map[string]any)
	if extended {
		_, extended = ext[modEach]
	}
	if !extended {
		acc.Set(append(list, doc.Clone(operand)))
		return nil
	}

	each, ok := doc.Clone(ext[modEach]).([]any)
	if !ok {
		return fmt.Errorf("%w: $each for %q must be a list", ErrBadOperand, path)
	}
	list = append(list, each...)

	if spec, ok := ext[modSort]; ok {
		if err := sortList(list, spec); err != nil {
			return fmt.Errorf("push %q: %w", path, err)
		}
	}

	if raw, ok := ext[modSlice]; ok {
		n, ok := doc.AsInt64(raw)
		if !ok {
			return fmt.Errorf("%w: $slice for %q must be an integer", ErrBadOperand, path)
		}
		list = sliceList(list, int(n))
	}

	acc.Set(list)
	return nil
}

// sortList sorts in place. spec is 1 / -1 to sort the elements themselves,
// or a document of field -> 1 / -1 to sort documents by those fields.
func sortList(list []any, spec any) error {
	if dir, ok := doc.AsInt64(spec); ok {
		slices.SortStableFunc(list, func(a, b any) int {
			return direction(dir) * doc.SortCompare(a, b)
		})
		return nil
	}

	keys, ok := spec.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: bad $sort %v", ErrBadOperand, spec)
	}
	fields := slices.Sorted(maps.Keys(keys))
	dirs := make([]int, len(fields))
	for i, f := range fields {
		d, ok := doc.AsInt64(keys[f])
		if !ok {
			return fmt.Errorf("%w: bad $sort direction for %q", ErrBadOperand, f)
		}
		dirs[i] = direction(d)
	}

	slices.SortStableFunc(list, func(a, b any) int {
		for i, f := range fields {
			av, _ := dotpath.Get(a, f)
			bv, _ := dotpath.Get(b, f)
			if c := doc.SortCompare(av, bv); c != 0 {
				return dirs[i] * c
			}
		}
		return 0
	})
	return nil
}

func direction(d int64) int {
	if d < 0 {
		return -1
	}
	return 1
}

func sliceList(list []any, n int) []any {
	switch {
	case n >= 0 && n < len(list):
		return list[:n]
	case n < 0 && -n < len(list):
		return list[len(list)+n:]
	}
	return list
}
