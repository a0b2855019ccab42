package update_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/update"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		doc       map[string]any
		wantErr   error
		wantPlain bool
	}{
		{"plain", map[string]any{"a": 1, "b.c": 2}, nil, true},
		{"directives", map[string]any{"$set": map[string]any{"a": 1}, "$inc": map[string]any{"n": 1}}, nil, false},
		{"mixed", map[string]any{"$set": map[string]any{"a": 1}, "b": 2}, update.ErrMixedDirectives, false},
		{"unknown directive", map[string]any{"$rename": map[string]any{"a": "b"}}, update.ErrUnknownDirective, false},
		{"unknown beside known", map[string]any{"$set": map[string]any{}, "$pull": map[string]any{}}, update.ErrUnknownDirective, false},
		{"operand not a document", map[string]any{"$set": 5}, update.ErrBadOperand, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := update.Parse(tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && u.Plain() != tt.wantPlain {
				t.Errorf("Plain() = %v, want %v", u.Plain(), tt.wantPlain)
			}
		})
	}
}

func TestSet(t *testing.T) {
	rec := doc.Record{"a": map[string]any{"b": 1}}
	changes := map[string]any{"$set": map[string]any{"a.c": 2, "x.y": "z"}}

	if err := update.Apply(rec, changes); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	once := doc.CloneRecord(rec)

	// $set is idempotent.
	if err := update.Apply(rec, changes); err != nil {
		t.Fatalf("Apply twice: %v", err)
	}
	if !reflect.DeepEqual(rec, once) {
		t.Fatalf("second $set changed record: %v vs %v", rec, once)
	}

	want := doc.Record{
		"a": map[string]any{"b": 1, "c": 2},
		"x": map[string]any{"y": "z"},
	}
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("rec = %v, want %v", rec, want)
	}
}

func TestSetUnresolvableIsNoop(t *testing.T) {
	rec := doc.Record{"a": 1, "l": []any{}}
	err := update.Apply(rec, map[string]any{"$set": map[string]any{"a.b": 2, "l.3": "x"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(rec, doc.Record{"a": 1, "l": []any{}}) {
		t.Fatalf("rec changed: %v", rec)
	}
}

func TestPlainIsSet(t *testing.T) {
	rec := doc.Record{"keep": true}
	if err := update.Apply(rec, map[string]any{"a.b": 1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := doc.Record{"keep": true, "a": map[string]any{"b": 1}}
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("rec = %v, want %v", rec, want)
	}
}

func TestUnset(t *testing.T) {
	rec := doc.Record{"a": map[string]any{"b": 1, "c": 2}}
	err := update.Apply(rec, map[string]any{"$unset": map[string]any{"a.b": true, "missing.x": true}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(rec, doc.Record{"a": map[string]any{"c": 2}}) {
		t.Fatalf("rec = %v", rec)
	}
}

func TestInc(t *testing.T) {
	tests := []struct {
		name    string
		rec     doc.Record
		amount  any
		want    any
		wantErr error
	}{
		{"missing is set", doc.Record{}, 3, 3, nil},
		{"null is set", doc.Record{"n": nil}, 3, 3, nil},
		{"int", doc.Record{"n": 1}, 2, 3, nil},
		{"float", doc.Record{"n": 1.5}, 1, 2.5, nil},
		{"bool", doc.Record{"n": true}, 1, int64(2), nil},
		{"string", doc.Record{"n": "x"}, 1, nil, update.ErrNotNumeric},
		{"non-numeric amount", doc.Record{"n": 1}, "1", nil, update.ErrNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := update.Apply(tt.rec, map[string]any{"$inc": map[string]any{"n": tt.amount}})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := tt.rec["n"]; !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("n = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestPush(t *testing.T) {
	tests := []struct {
		name    string
		rec     doc.Record
		operand any
		want    []any
		wantErr error
	}{
		{
			name:    "append",
			rec:     doc.Record{"l": []any{1}},
			operand: 2,
			want:    []any{1, 2},
		},
		{
			name:    "missing starts empty",
			rec:     doc.Record{},
			operand: "x",
			want:    []any{"x"},
		},
		{
			name:    "append document",
			rec:     doc.Record{"l": []any{}},
			operand: map[string]any{"k": 1},
			want:    []any{map[string]any{"k": 1}},
		},
		{
			name:    "each with negative slice",
			rec:     doc.Record{"l": []any{1, 2, 3}},
			operand: map[string]any{"$each": []any{4, 5}, "$slice": -3},
			want:    []any{3, 4, 5},
		},
		{
			name:    "each with positive slice",
			rec:     doc.Record{"l": []any{1, 2, 3}},
			operand: map[string]any{"$each": []any{4, 5}, "$slice": 2},
			want:    []any{1, 2},
		},
		{
			name:    "each sorted descending",
			rec:     doc.Record{"l": []any{2, 9}},
			operand: map[string]any{"$each": []any{5, 1}, "$sort": -1},
			want:    []any{9, 5, 2, 1},
		},
		{
			name: "each sorted by field then sliced",
			rec:  doc.Record{"l": []any{map[string]any{"s": 3}}},
			operand: map[string]any{
				"$each":  []any{map[string]any{"s": 1}, map[string]any{"s": 2}},
				"$sort":  map[string]any{"s": 1},
				"$slice": -2,
			},
			want: []any{map[string]any{"s": 2}, map[string]any{"s": 3}},
		},
		{
			name:    "not a list",
			rec:     doc.Record{"l": "str"},
			operand: 1,
			wantErr: update.ErrNotAList,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := update.Apply(tt.rec, map[string]any{"$push": map[string]any{"l": tt.operand}})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := tt.rec["l"]; !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("l = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestPushAndIncTogether(t *testing.T) {
	rec := doc.Record{"progress": []any{}, "n_msgs": 0}
	changes := map[string]any{
		"$push": map[string]any{"progress": "hi"},
		"$inc":  map[string]any{"n_msgs": 1},
	}
	if err := update.Apply(rec, changes); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(rec["progress"], []any{"hi"}) || rec["n_msgs"] != 1 {
		t.Fatalf("rec = %v", rec)
	}
}

func TestFields(t *testing.T) {
	u := update.MustParse(map[string]any{
		"$set":   map[string]any{"b": 1, "a": 1},
		"$unset": map[string]any{"a": true},
	})
	if got := u.Fields(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Fields() = %v", got)
	}
}
