// Package storetest is a behavioural test suite shared by every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/projection"
	"github.com/xraph/docket/query"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/update"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertGeneratesDistinctIDs", testInsertGeneratesDistinctIDs},
		{"InsertKeepsGivenID", testInsertKeepsGivenID},
		{"InsertCopies", testInsertCopies},
		{"InsertDuplicate", testInsertDuplicate},
		{"QueryByRowID", testQueryByRowID},
		{"QueryFilterSortLimitFields", testQueryShape},
		{"QueryUnknownOperator", testQueryUnknownOperator},
		{"QueryReturnsCopies", testQueryReturnsCopies},
		{"UpdateByRowID", testUpdateByRowID},
		{"UpdateByQuery", testUpdateByQuery},
		{"UpdateFailureLeavesRecords", testUpdateFailureLeavesRecords},
		{"UpsertByRowID", testUpsertByRowID},
		{"UpsertByQuery", testUpsertByQuery},
		{"UpdateBadDocument", testUpdateBadDocument},
		{"ReplaceMerges", testReplaceMerges},
		{"ReplaceRejectsDirectives", testReplaceRejectsDirectives},
		{"ReplaceMissing", testReplaceMissing},
		{"Delete", testDelete},
		{"DropAndPurge", testDropAndPurge},
		{"ProgressAppendIsAtomic", testProgressAppendIsAtomic},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, factory(t))
		})
	}
}

func mustInsert(t *testing.T, s store.Store, coll string, d doc.Record) string {
	t.Helper()
	rowID, err := s.Insert(context.Background(), coll, d)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rowID
}

func mustGet(t *testing.T, s store.Store, coll, rowID string) doc.Record {
	t.Helper()
	recs, err := s.Query(context.Background(), coll, map[string]any{doc.RowID: rowID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Query(%s) returned %d records, want 1", rowID, len(recs))
	}
	return recs[0]
}

func mustCount(t *testing.T, s store.Store, coll string, q map[string]any) int {
	t.Helper()
	recs, err := s.Query(context.Background(), coll, q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return len(recs)
}

func equal(t *testing.T, what string, got, want any) {
	t.Helper()
	if !doc.Equal(got, want) {
		t.Errorf("%s = %#v, want %#v", what, got, want)
	}
}

func testInsertGeneratesDistinctIDs(t *testing.T, s store.Store) {
	a := mustInsert(t, s, "c", doc.Record{"v": 1})
	b := mustInsert(t, s, "c", doc.Record{"v": 1, doc.RowID: ""})
	if a == "" || b == "" || a == b {
		t.Fatalf("ids %q and %q must be distinct and non-empty", a, b)
	}
	if got := mustCount(t, s, "c", nil); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func testInsertKeepsGivenID(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{doc.RowID: "fixed", "v": 1})
	if rowID != "fixed" {
		t.Fatalf("id = %q, want fixed", rowID)
	}
	equal(t, "v", mustGet(t, s, "c", "fixed")["v"], 1)
}

func testInsertCopies(t *testing.T, s store.Store) {
	in := doc.Record{"nested": map[string]any{"k": "v"}}
	rowID := mustInsert(t, s, "c", in)
	in["nested"].(map[string]any)["k"] = "changed"
	if _, ok := in[doc.RowID]; ok {
		t.Error("Insert stamped the caller's record")
	}
	equal(t, "nested.k", mustGet(t, s, "c", rowID)["nested"].(map[string]any)["k"], "v")
}

func testInsertDuplicate(t *testing.T, s store.Store) {
	mustInsert(t, s, "c", doc.Record{doc.RowID: "x"})
	if _, err := s.Insert(context.Background(), "c", doc.Record{doc.RowID: "x"}); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func testQueryByRowID(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustInsert(t, s, "c", doc.Record{doc.RowID: "a", "v": 1})
	recs, err := s.Query(ctx, "c", map[string]any{doc.RowID: "missing"})
	if err != nil || len(recs) != 0 {
		t.Fatalf("missing id: %v, %v", recs, err)
	}
	recs, err = s.Query(ctx, "nope", map[string]any{doc.RowID: "a"})
	if err != nil || len(recs) != 0 {
		t.Fatalf("missing collection: %v, %v", recs, err)
	}
	recs, err = s.Query(ctx, "c", map[string]any{doc.RowID: "a"}, store.WithFields(projection.Only("other")))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reflect.DeepEqual(recs, []doc.Record{{doc.RowID: "a"}}) {
		t.Fatalf("projected = %v", recs)
	}
}

func testQueryShape(t *testing.T, s store.Store) {
	for i := range 5 {
		mustInsert(t, s, "c", doc.Record{
			doc.RowID: fmt.Sprintf("r%d", i),
			"n":       i,
			"even":    i%2 == 0,
			"secret":  "s",
		})
	}
	recs, err := s.Query(context.Background(), "c",
		map[string]any{"even": true},
		store.WithSort(projection.Desc("n")),
		store.WithLimit(2),
		store.WithFields(projection.Without("secret")),
	)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	equal(t, "first n", recs[0]["n"], 4)
	equal(t, "second n", recs[1]["n"], 2)
	for _, r := range recs {
		if _, ok := r["secret"]; ok {
			t.Errorf("excluded field returned: %v", r)
		}
	}
}

func testQueryUnknownOperator(t *testing.T, s store.Store) {
	mustInsert(t, s, "c", doc.Record{"a": 1})
	_, err := s.Query(context.Background(), "c", map[string]any{"a": map[string]any{"$regex": "x"}})
	if !errors.Is(err, query.ErrUnknownOperator) {
		t.Fatalf("err = %v, want ErrUnknownOperator", err)
	}
}

func testQueryReturnsCopies(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{"list": []any{1}})
	got := mustGet(t, s, "c", rowID)
	got["list"] = append(got["list"].([]any), 2)
	equal(t, "list", mustGet(t, s, "c", rowID)["list"], []any{1})
}

func testUpdateByRowID(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{"n": 1})
	n, err := s.Update(context.Background(), "c", rowID, map[string]any{
		"$inc":  map[string]any{"n": 2},
		"$push": map[string]any{"log": "a"},
	}, false)
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	got := mustGet(t, s, "c", rowID)
	equal(t, "n", got["n"], 3)
	equal(t, "log", got["log"], []any{"a"})

	n, err = s.Update(context.Background(), "c", "missing", map[string]any{"x": 1}, false)
	if err != nil || n != 0 {
		t.Fatalf("Update missing = %d, %v", n, err)
	}
}

func testUpdateByQuery(t *testing.T, s store.Store) {
	for i := range 4 {
		mustInsert(t, s, "c", doc.Record{"n": i})
	}
	n, err := s.Update(context.Background(), "c", map[string]any{"n": map[string]any{"$gte": 2}},
		map[string]any{"big": true}, false)
	if err != nil || n != 2 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	if got := mustCount(t, s, "c", map[string]any{"big": true}); got != 2 {
		t.Fatalf("big count = %d, want 2", got)
	}
}

func testUpdateFailureLeavesRecords(t *testing.T, s store.Store) {
	mustInsert(t, s, "c", doc.Record{doc.RowID: "a", "v": 1})
	mustInsert(t, s, "c", doc.Record{doc.RowID: "b", "v": "text"})
	_, err := s.Update(context.Background(), "c", nil, map[string]any{
		"$set": map[string]any{"touched": true},
		"$inc": map[string]any{"v": 1},
	}, false)
	if !errors.Is(err, update.ErrNotNumeric) {
		t.Fatalf("err = %v, want ErrNotNumeric", err)
	}
	if got := mustCount(t, s, "c", map[string]any{"touched": map[string]any{"$exists": true}}); got != 0 {
		t.Fatalf("%d records partially updated", got)
	}
}

func testUpsertByRowID(t *testing.T, s store.Store) {
	n, err := s.Update(context.Background(), "c", "job-1", map[string]any{"$set": map[string]any{"v": 1}}, true)
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	equal(t, "v", mustGet(t, s, "c", "job-1")["v"], 1)
}

func testUpsertByQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	sel := map[string]any{"name": "x", "n": map[string]any{"$gt": 0}}
	for range 2 {
		if _, err := s.Update(ctx, "c", sel, map[string]any{"$inc": map[string]any{"n": 1}}, true); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	recs, err := s.Query(ctx, "c", map[string]any{"name": "x"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("upsert created %d records, want 1", len(recs))
	}
	equal(t, "n", recs[0]["n"], 2)
}

func testUpdateBadDocument(t *testing.T, s store.Store) {
	mustInsert(t, s, "c", doc.Record{doc.RowID: "a"})
	_, err := s.Update(context.Background(), "c", "a", map[string]any{"$set": map[string]any{"x": 1}, "y": 2}, false)
	if !errors.Is(err, update.ErrMixedDirectives) {
		t.Fatalf("err = %v, want ErrMixedDirectives", err)
	}
	if _, err := s.Update(context.Background(), "c", 42, map[string]any{"x": 1}, false); !errors.Is(err, store.ErrBadSelector) {
		t.Fatalf("err = %v, want ErrBadSelector", err)
	}
}

func testReplaceMerges(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{"keep": 1, "change": 1})
	if err := s.Replace(context.Background(), "c", rowID, doc.Record{"change": 2, "add": 3}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got := mustGet(t, s, "c", rowID)
	want := doc.Record{doc.RowID: rowID, "keep": 1, "change": 2, "add": 3}
	if !doc.Equal(map[string]any(got), map[string]any(want)) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func testReplaceRejectsDirectives(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{"v": 1})
	err := s.Replace(context.Background(), "c", rowID, doc.Record{"$set": map[string]any{"v": 2}})
	if !errors.Is(err, store.ErrDirectiveInReplace) {
		t.Fatalf("err = %v, want ErrDirectiveInReplace", err)
	}
}

func testReplaceMissing(t *testing.T, s store.Store) {
	if err := s.Replace(context.Background(), "c", "nope", doc.Record{"v": 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustInsert(t, s, "c", doc.Record{"k": "x"})
	mustInsert(t, s, "c", doc.Record{"k": "y"})
	mustInsert(t, s, "c", doc.Record{"k": "y"})

	n, err := s.Delete(ctx, "c", a)
	if err != nil || n != 1 {
		t.Fatalf("Delete(id) = %d, %v", n, err)
	}
	n, err = s.Delete(ctx, "c", map[string]any{"k": "y"})
	if err != nil || n != 2 {
		t.Fatalf("Delete(query) = %d, %v", n, err)
	}
	if got := mustCount(t, s, "c", nil); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
	n, err = s.Delete(ctx, "c", "gone")
	if err != nil || n != 0 {
		t.Fatalf("Delete(missing) = %d, %v", n, err)
	}
}

func testDropAndPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustInsert(t, s, "a", doc.Record{"v": 1})
	mustInsert(t, s, "b", doc.Record{"v": 1})
	mustInsert(t, s, "c", doc.Record{"v": 1})

	if err := s.DropCollection(ctx, "a"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if got := mustCount(t, s, "a", nil); got != 0 {
		t.Fatalf("dropped collection has %d records", got)
	}
	if got := mustCount(t, s, "b", nil); got != 1 {
		t.Fatalf("sibling collection has %d records", got)
	}
	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	for _, c := range []string{"b", "c"} {
		if got := mustCount(t, s, c, nil); got != 0 {
			t.Fatalf("collection %s has %d records after purge", c, got)
		}
	}
}

func testProgressAppendIsAtomic(t *testing.T, s store.Store) {
	rowID := mustInsert(t, s, "c", doc.Record{"progress": []any{}, "n_msgs": 0})
	const writers, each = 4, 10

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				_, err := s.Update(context.Background(), "c", rowID, map[string]any{
					"$push": map[string]any{"progress": fmt.Sprintf("%d-%d", w, i)},
					"$inc":  map[string]any{"n_msgs": 1},
				}, false)
				if err != nil {
					t.Errorf("Update: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got := mustGet(t, s, "c", rowID)
	equal(t, "n_msgs", got["n_msgs"], writers*each)
	if l := len(got["progress"].([]any)); l != writers*each {
		t.Fatalf("progress has %d entries, want %d", l, writers*each)
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
