// Package dotpath resolves dotted field paths ("a.b.0.c") into accessors
// over nested map[string]any / []any structures.
//
// Segments are separated by "." unless the path contains "//", in which
// case "//" is the only separator and dots are literal parts of field
// names ("host.name//port" addresses field "port" inside "host.name").
// All-digit segments index into lists.
//
// Resolve never creates list elements: a path through a missing list index
// fails to resolve, even with Options.Create.
package dotpath

import "strings"

// Escape is the alternate separator that lets field names contain dots.
const Escape = "//"

// Options controls how Resolve treats missing parts of the path.
type Options struct {
	// Create materializes missing intermediate containers while descending.
	// A new container is a list when the following segment is all digits
	// and a map otherwise.
	Create bool

	// IfExists makes resolution fail when the leaf itself is missing.
	IfExists bool
}

// Accessor reads, writes and removes the value a path resolved to.
type Accessor struct {
	Get    func() any
	Set    func(v any)
	Delete func()
}

// Split breaks a path into its segments.
func Split(path string) []string {
	if strings.Contains(path, Escape) {
		return strings.Split(path, Escape)
	}
	return strings.Split(path, ".")
}

// Join builds a path from segments, switching to the escape separator when
// any segment contains a dot.
func Join(segs ...string) string {
	for _, s := range segs {
		if strings.Contains(s, ".") {
			return strings.Join(segs, Escape)
		}
	}
	return strings.Join(segs, ".")
}

// Resolve walks root along path. It reports false when an intermediate
// container is missing (and not created), when a segment does not fit the
// container it addresses, or, with IfExists, when the leaf is absent.
func Resolve(root any, path string, opts Options) (Accessor, bool) {
	segs := Split(path)
	cur := root
	// attach writes a replaced container back into its parent. It stays nil
	// for the root, so list elements directly under a list root cannot be
	// deleted.
	var attach func(any)

	for i, seg := range segs[:len(segs)-1] {
		next, nextAttach, ok := child(cur, seg, segs[i+1], opts.Create)
		if !ok {
			return Accessor{}, false
		}
		cur, attach = next, nextAttach
	}

	return leaf(cur, attach, segs[len(segs)-1], opts.IfExists)
}

// Get is a read-only shorthand for Resolve. ok is false when the path is
// unreachable or the leaf is missing.
func Get(root any, path string) (any, bool) {
	acc, ok := Resolve(root, path, Options{IfExists: true})
	if !ok {
		return nil, false
	}
	return acc.Get(), true
}

// Exists reports whether path addresses a present leaf.
func Exists(root any, path string) bool {
	_, ok := Resolve(root, path, Options{IfExists: true})
	return ok
}

func child(cur any, seg, nextSeg string, create bool) (any, func(any), bool) {
	switch c := cur.(type) {
	case map[string]any:
		next, present := c[seg]
		if !present || next == nil {
			if !create {
				return nil, nil, false
			}
			next = newContainer(nextSeg)
			c[seg] = next
		}
		if !isContainer(next) {
			return nil, nil, false
		}
		return next, func(v any) { c[seg] = v }, true

	case []any:
		idx, ok := index(seg)
		if !ok || idx >= len(c) {
			return nil, nil, false
		}
		next := c[idx]
		if next == nil {
			if !create {
				return nil, nil, false
			}
			next = newContainer(nextSeg)
			c[idx] = next
		}
		if !isContainer(next) {
			return nil, nil, false
		}
		return next, func(v any) { c[idx] = v }, true
	}
	return nil, nil, false
}

func leaf(cur any, attach func(any), seg string, ifExists bool) (Accessor, bool) {
	switch c := cur.(type) {
	case map[string]any:
		if _, present := c[seg]; ifExists && !present {
			return Accessor{}, false
		}
		return Accessor{
			Get:    func() any { return c[seg] },
			Set:    func(v any) { c[seg] = v },
			Delete: func() { delete(c, seg) },
		}, true

	case []any:
		idx, ok := index(seg)
		if !ok || idx >= len(c) {
			return Accessor{}, false
		}
		return Accessor{
			Get: func() any { return c[idx] },
			Set: func(v any) { c[idx] = v },
			Delete: func() {
				if attach == nil {
					return
				}
				out := make([]any, 0, len(c)-1)
				out = append(out, c[:idx]...)
				out = append(out, c[idx+1:]...)
				attach(out)
			},
		}, true
	}
	return Accessor{}, false
}

func newContainer(nextSeg string) any {
	if _, ok := index(nextSeg); ok {
		return []any{}
	}
	return map[string]any{}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// index parses an all-digit segment.
func index(seg string) (int, bool) {
	if seg == "" || len(seg) > 9 {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
