package update

import (
	"maps"

	"github.com/xraph/docket/dotpath"
)

// Prepend rewrites an update written against a sub-document so that it
// applies at field of the parent record. The directive shape of u is kept:
// a plain update stays plain and each directive keeps its operands.
func Prepend(u map[string]any, field string) map[string]any {
	if !HasDirectives(u) {
		return prefixKeys(u, field)
	}
	out := make(map[string]any, len(u))
	for op, v := range u {
		sub, ok := v.(map[string]any)
		if !ok {
			out[op] = v
			continue
		}
		out[op] = prefixKeys(sub, field)
	}
	return out
}

func prefixKeys(m map[string]any, field string) map[string]any {
	out := make(map[string]any, len(m))
	for path, v := range m {
		segs := append(dotpath.Split(field), dotpath.Split(path)...)
		out[dotpath.Join(segs...)] = v
	}
	return out
}

// AddToOperation returns a copy of u that additionally sets key to value.
// Plain updates get the key directly; directive updates get it merged into
// their $set without dropping existing $set entries.
func AddToOperation(u map[string]any, key string, value any) map[string]any {
	out := maps.Clone(u)
	if out == nil {
		out = make(map[string]any, 1)
	}
	if !HasDirectives(out) {
		out[key] = value
		return out
	}

	set, _ := out[string(OpSet)].(map[string]any)
	set = maps.Clone(set)
	if set == nil {
		set = make(map[string]any, 1)
	}
	set[key] = value
	out[string(OpSet)] = set
	return out
}
