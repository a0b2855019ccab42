// Package query compiles query documents into predicates over records.
//
// A query maps dotted field paths to either a literal (list-aware
// equality) or an operator document ({"$gt": 3}), plus the logical keys
// $and, $or and $not, each holding a list of sub-queries.
//
// The logical operators work on the flattened tests of their sub-queries,
// not on the sub-queries as units:
//
//   - $and merges every sub-test into the enclosing conjunction.
//   - $or is true when any single sub-test passes.
//   - $not is true when any single sub-test fails (NAND over the wrapped
//     conjunction), which is not a per-field negation.
package query

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// Logical operators.
const (
	OpAnd = "$and"
	OpOr  = "$or"
	OpNot = "$not"
)

// Field operators.
const (
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpNe     = "$ne"
	OpIn     = "$in"
	OpExists = "$exists"
)

var (
	ErrUnknownOperator = errors.New("query: unknown operator")
	ErrBadLogical      = errors.New("query: logical operator needs a list of sub-queries")
	ErrBadOperand      = errors.New("query: bad operand")
)

// Predicate reports whether a record matches a compiled query.
type Predicate func(r doc.Record) bool

// MatchAll is the predicate of an empty query.
func MatchAll(doc.Record) bool { return true }

type test func(r doc.Record) bool

// Compile turns q into a predicate. A nil or empty query matches every
// record. Unknown operators are rejected here rather than ignored.
func Compile(q map[string]any) (Predicate, error) {
	if len(q) == 0 {
		return MatchAll, nil
	}
	tests, err := compileTests(q)
	if err != nil {
		return nil, err
	}
	return func(r doc.Record) bool {
		for _, t := range tests {
			if !t(r) {
				return false
			}
		}
		return true
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(q map[string]any) Predicate {
	p, err := Compile(q)
	if err != nil {
		panic(err)
	}
	return p
}

func compileTests(q map[string]any) ([]test, error) {
	var tests []test
	for _, key := range slices.Sorted(maps.Keys(q)) {
		val := q[key]
		switch {
		case key == OpAnd:
			sub, err := subTests(key, val)
			if err != nil {
				return nil, err
			}
			tests = append(tests, sub...)

		case key == OpOr:
			sub, err := subTests(key, val)
			if err != nil {
				return nil, err
			}
			tests = append(tests, func(r doc.Record) bool {
				for _, t := range sub {
					if t(r) {
						return true
					}
				}
				return false
			})

		case key == OpNot:
			sub, err := subTests(key, val)
			if err != nil {
				return nil, err
			}
			tests = append(tests, func(r doc.Record) bool {
				for _, t := range sub {
					if !t(r) {
						return true
					}
				}
				return false
			})

		case strings.HasPrefix(key, "$"):
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, key)

		default:
			fieldTests, err := compileField(key, val)
			if err != nil {
				return nil, err
			}
			tests = append(tests, fieldTests...)
		}
	}
	return tests, nil
}

// subTests flattens the tests of every sub-query of a logical operator.
func subTests(op string, val any) ([]test, error) {
	var subs []map[string]any
	switch v := val.(type) {
	case []any:
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s element is %T", ErrBadLogical, op, e)
			}
			subs = append(subs, m)
		}
	case []map[string]any:
		subs = v
	case map[string]any:
		subs = []map[string]any{v}
	default:
		return nil, fmt.Errorf("%w: %s got %T", ErrBadLogical, op, val)
	}

	var out []test
	for _, sub := range subs {
		t, err := compileTests(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, t...)
	}
	return out, nil
}

func compileField(path string, val any) ([]test, error) {
	ops, isOps := operatorDoc(val)
	if !isOps {
		want := doc.Clone(val)
		return []test{func(r doc.Record) bool {
			return listAwareEqual(fieldValue(r, path), want)
		}}, nil
	}

	var tests []test
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		t, err := compileOperator(path, op, doc.Clone(ops[op]))
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}

// operatorDoc reports whether val is a non-empty document whose keys all
// start with "$".
func operatorDoc(val any) (map[string]any, bool) {
	m, ok := val.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func compileOperator(path, op string, operand any) (test, error) {
	switch op {
	case OpLt:
		return func(r doc.Record) bool { return lt(fieldValue(r, path), operand) }, nil
	case OpLte:
		return func(r doc.Record) bool { return lte(fieldValue(r, path), operand) }, nil
	case OpGt:
		return func(r doc.Record) bool { return lt(operand, fieldValue(r, path)) }, nil
	case OpGte:
		return func(r doc.Record) bool { return lte(operand, fieldValue(r, path)) }, nil
	case OpNe:
		return func(r doc.Record) bool { return !doc.Equal(fieldValue(r, path), operand) }, nil
	case OpIn:
		list, ok := operand.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: $in for %q needs a list, got %T", ErrBadOperand, path, operand)
		}
		return func(r doc.Record) bool { return listAwareEqual(fieldValue(r, path), list) }, nil
	case OpExists:
		want := truthy(operand)
		return func(r doc.Record) bool { return dotpath.Exists(r, path) == want }, nil
	}
	return nil, fmt.Errorf("%w: %q on %q", ErrUnknownOperator, op, path)
}

// fieldValue reads path from r; unreachable paths and missing leaves read
// as nil.
func fieldValue(r doc.Record, path string) any {
	v, _ := dotpath.Get(r, path)
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := doc.AsNumber(v); ok {
		return n != 0
	}
	return true
}
