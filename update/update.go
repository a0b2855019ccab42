// Package update applies update documents to records.
//
// An update document is either directive-shaped, with one or more of
// $set, $unset, $push and $inc each mapping dotted paths to operands, or a
// plain path -> value mapping that is applied as $set. Parse validates the
// shape once; Apply mutates a record in place.
package update

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// Op is an update directive.
type Op string

// Supported directives.
const (
	OpSet   Op = "$set"
	OpUnset Op = "$unset"
	OpInc   Op = "$inc"
	OpPush  Op = "$push"
)

// applyOrder is the order directives run in when a document carries
// several of them.
var applyOrder = []Op{OpSet, OpInc, OpPush, OpUnset}

var (
	ErrMixedDirectives  = errors.New("update: directive and non-directive keys mixed")
	ErrUnknownDirective = errors.New("update: unknown directive")
	ErrBadOperand       = errors.New("update: directive operand must be a document")
	ErrNotAList         = errors.New("update: $push target is not a list")
	ErrNotNumeric       = errors.New("update: $inc on non-numeric value")
)

// IsDirective reports whether key is one of the supported directives.
func IsDirective(key string) bool {
	switch Op(key) {
	case OpSet, OpUnset, OpInc, OpPush:
		return true
	}
	return false
}

// HasDirectives reports whether any top-level key of d is a directive.
func HasDirectives(d map[string]any) bool {
	for k := range d {
		if IsDirective(k) {
			return true
		}
	}
	return false
}

// Update is a validated update document.
type Update struct {
	plain bool
	ops   map[Op]map[string]any
}

// Parse validates d and returns the update it describes.
func Parse(d map[string]any) (*Update, error) {
	u := &Update{ops: make(map[Op]map[string]any)}

	if !HasDirectives(d) {
		for k := range d {
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("%w: %q", ErrUnknownDirective, k)
			}
		}
		u.plain = true
		u.ops[OpSet] = d
		return u, nil
	}

	for k, v := range d {
		if !IsDirective(k) {
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("%w: %q", ErrUnknownDirective, k)
			}
			return nil, fmt.Errorf("%w: %q", ErrMixedDirectives, k)
		}
		sub, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s got %T", ErrBadOperand, k, v)
		}
		u.ops[Op(k)] = sub
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Use for literal updates.
func MustParse(d map[string]any) *Update {
	u, err := Parse(d)
	if err != nil {
		panic(err)
	}
	return u
}

// Plain reports whether the update was written without directives.
func (u *Update) Plain() bool { return u.plain }

// Fields returns every path the update touches, sorted.
func (u *Update) Fields() []string {
	var out []string
	for _, sub := range u.ops {
		for path := range sub {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Apply mutates rec in place. Directives run in the order $set, $inc,
// $push, $unset and paths within one directive in sorted order, so parents
// are written before their children. An error may leave rec partially
// updated.
func (u *Update) Apply(rec doc.Record) error {
	for _, op := range applyOrder {
		sub, ok := u.ops[op]
		if !ok {
			continue
		}
		for _, path := range slices.Sorted(maps.Keys(sub)) {
			if err := applyOne(rec, op, path, sub[path]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Apply parses changes and applies them to rec.
func Apply(rec doc.Record, changes map[string]any) error {
	u, err := Parse(changes)
	if err != nil {
		return err
	}
	return u.Apply(rec)
}

func applyOne(rec doc.Record, op Op, path string, operand any) error {
	switch op {
	case OpSet:
		set(rec, path, operand)
		return nil
	case OpUnset:
		unset(rec, path)
		return nil
	case OpInc:
		return inc(rec, path, operand)
	case OpPush:
		return push(rec, path, operand)
	}
	return fmt.Errorf("%w: %q", ErrUnknownDirective, op)
}

// set silently does nothing when the path cannot be resolved.
func set(rec doc.Record, path string, v any) {
	acc, ok := dotpath.Resolve(rec, path, dotpath.Options{Create: true})
	if !ok {
		return
	}
	acc.Set(doc.Clone(v))
}

func unset(rec doc.Record, path string) {
	acc, ok := dotpath.Resolve(rec, path, dotpath.Options{IfExists: true})
	if !ok {
		return
	}
	acc.Delete()
}

func inc(rec doc.Record, path string, amount any) error {
	if _, ok := doc.AsNumber(amount); !ok {
		return fmt.Errorf("%w: increment %v (%T) for %q", ErrNotNumeric, amount, amount, path)
	}
	acc, ok := dotpath.Resolve(rec, path, dotpath.Options{Create: true})
	if !ok {
		return nil
	}
	cur := acc.Get()
	if cur == nil {
		acc.Set(amount)
		return nil
	}
	if _, ok := doc.AsNumber(cur); !ok {
		return fmt.Errorf("%w: %q holds %T", ErrNotNumeric, path, cur)
	}
	acc.Set(add(cur, amount))
	return nil
}

// add sums two numbers (booleans count as 0/1), staying integral when
// both operands are.
func add(a, b any) any {
	if isFloat(a) || isFloat(b) {
		x, _ := doc.AsNumber(a)
		y, _ := doc.AsNumber(b)
		return x + y
	}
	x, _ := doc.AsInt64(a)
	y, _ := doc.AsInt64(b)
	if _, ok := a.(int); ok {
		if _, ok := b.(int); ok {
			return int(x + y)
		}
	}
	return x + y
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}
