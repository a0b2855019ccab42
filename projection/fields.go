// Package projection restricts which fields of a record a caller sees and
// applies sort and limit to result sets.
package projection

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// Kind is the polarity of a field selector.
type Kind int

const (
	// Unrestricted exposes every field.
	Unrestricted Kind = iota
	// Include exposes only the listed fields (and the ROW_ID).
	Include
	// Exclude exposes everything but the listed fields.
	Exclude
)

func (k Kind) String() string {
	switch k {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	default:
		return "unrestricted"
	}
}

// ErrMixedPolarity is returned for selector documents mixing truthy and
// falsy values.
var ErrMixedPolarity = errors.New("projection: selector mixes inclusion and exclusion")

// Fields is a field selector. The zero value is Unrestricted.
type Fields struct {
	kind  Kind
	names map[string]struct{}
}

// All returns the unrestricted selector.
func All() Fields { return Fields{} }

// Only returns an inclusion selector.
func Only(names ...string) Fields { return Fields{kind: Include, names: set(names)} }

// Without returns an exclusion selector.
func Without(names ...string) Fields { return Fields{kind: Exclude, names: set(names)} }

// FromSelector converts the loosely typed selector callers send: nil, a
// list of names, or a document whose values are all truthy (inclusion) or
// all falsy (exclusion).
func FromSelector(sel any) (Fields, error) {
	switch s := sel.(type) {
	case nil:
		return All(), nil
	case Fields:
		return s, nil
	case []string:
		return Only(s...), nil
	case []any:
		names := make([]string, 0, len(s))
		for _, e := range s {
			name, ok := e.(string)
			if !ok {
				return Fields{}, fmt.Errorf("projection: field name %v is %T", e, e)
			}
			names = append(names, name)
		}
		return Only(names...), nil
	case map[string]bool:
		m := make(map[string]any, len(s))
		for k, v := range s {
			m[k] = v
		}
		return fromDocument(m)
	case map[string]any:
		return fromDocument(s)
	}
	return Fields{}, fmt.Errorf("projection: unsupported selector %T", sel)
}

func fromDocument(m map[string]any) (Fields, error) {
	if len(m) == 0 {
		return All(), nil
	}
	var in, out []string
	for k, v := range m {
		if truthy(v) {
			in = append(in, k)
		} else {
			out = append(out, k)
		}
	}
	switch {
	case len(out) == 0:
		return Only(in...), nil
	case len(in) == 0:
		return Without(out...), nil
	}
	return Fields{}, ErrMixedPolarity
}

// Kind returns the selector's polarity.
func (f Fields) Kind() Kind { return f.kind }

// Names returns the selector's field names, sorted.
func (f Fields) Names() []string { return slices.Sorted(maps.Keys(f.names)) }

// Modify merges fields that must be visible (include) and fields that must
// be hidden (exclude) into f. The existing polarity is kept; an
// unrestricted selector only becomes an exclusion when something has to be
// hidden. Exclusion wins over inclusion for names given in both.
func (f Fields) Modify(exclude, include []string) Fields {
	names := maps.Clone(f.names)
	if names == nil {
		names = make(map[string]struct{})
	}

	switch f.kind {
	case Unrestricted:
		if len(exclude) == 0 {
			return f
		}
		return Without(exclude...)
	case Include:
		for _, n := range include {
			names[n] = struct{}{}
		}
		for _, n := range exclude {
			delete(names, n)
		}
	case Exclude:
		for _, n := range include {
			delete(names, n)
		}
		for _, n := range exclude {
			names[n] = struct{}{}
		}
		if len(names) == 0 {
			return All()
		}
	}
	return Fields{kind: f.kind, names: names}
}

// Apply returns a projected deep copy of r.
func (f Fields) Apply(r doc.Record) doc.Record {
	switch f.kind {
	case Include:
		out := doc.Record{}
		if v, ok := r[doc.RowID]; ok {
			out[doc.RowID] = doc.Clone(v)
		}
		for _, name := range f.Names() {
			v, ok := dotpath.Get(r, name)
			if !ok {
				continue
			}
			if acc, ok := dotpath.Resolve(out, name, dotpath.Options{Create: true}); ok {
				acc.Set(doc.Clone(v))
			}
		}
		return out
	case Exclude:
		out := doc.CloneRecord(r)
		for _, name := range f.Names() {
			if acc, ok := dotpath.Resolve(out, name, dotpath.Options{IfExists: true}); ok {
				acc.Delete()
			}
		}
		return out
	}
	return doc.CloneRecord(r)
}

func set(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	if n, ok := doc.AsNumber(v); ok {
		return n != 0
	}
	return true
}
