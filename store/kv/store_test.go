package kv_test

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/xraph/docket"
	"github.com/xraph/docket/codec"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/store/kv"
	"github.com/xraph/docket/store/storetest"
)

// mapBackend is a minimal Backend for exercising Store without a database.
type mapBackend struct {
	mu     sync.Mutex
	data   map[string]map[string][]byte
	writes int
	closed bool
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: make(map[string]map[string][]byte)}
}

func (m *mapBackend) Get(_ context.Context, coll, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[coll][key]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

func (m *mapBackend) Scan(_ context.Context, coll string, fn func(string, []byte) error) error {
	m.mu.Lock()
	snapshot := maps.Clone(m.data[coll])
	m.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(snapshot)) {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapBackend) Write(_ context.Context, b *kv.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for _, op := range b.Ops() {
		if op.Delete {
			delete(m.data[op.Collection], op.Key)
			continue
		}
		if m.data[op.Collection] == nil {
			m.data[op.Collection] = make(map[string][]byte)
		}
		m.data[op.Collection][op.Key] = bytes.Clone(op.Value)
	}
	return nil
}

func (m *mapBackend) DropCollection(_ context.Context, coll string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, coll)
	return nil
}

func (m *mapBackend) DropAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.data)
	return nil
}

func (m *mapBackend) Ping(context.Context) error { return nil }

func (m *mapBackend) Close() error {
	m.closed = true
	return nil
}

var _ kv.Backend = (*mapBackend)(nil)

func TestConformance(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			storetest.Run(t, func(*testing.T) store.Store {
				return kv.New(newMapBackend(), kv.WithCodec(c))
			})
		})
	}
}

func TestUpdateIsOneBatch(t *testing.T) {
	t.Parallel()
	b := newMapBackend()
	s := kv.New(b)
	ctx := context.Background()

	for range 3 {
		if _, err := s.Insert(ctx, "c", doc.Record{"v": 1}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	before := b.writes
	n, err := s.Update(ctx, "c", map[string]any{"v": 1}, map[string]any{"$inc": map[string]any{"v": 1}}, false)
	if err != nil || n != 3 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	if got := b.writes - before; got != 1 {
		t.Fatalf("Update issued %d writes, want 1", got)
	}
}

func TestUndecodableRecordsAreSkipped(t *testing.T) {
	t.Parallel()
	b := newMapBackend()
	s := kv.New(b, kv.WithCodec(codec.JSON{}))
	ctx := context.Background()

	if _, err := s.Insert(ctx, "c", doc.Record{doc.RowID: "good", "v": 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	var batch kv.Batch
	batch.Put("c", "bad", []byte("not json"))
	if err := b.Write(ctx, &batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	recs, err := s.Query(ctx, "c", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 || recs[0][doc.RowID] != "good" {
		t.Fatalf("Query = %v", recs)
	}
	if _, err := s.Query(ctx, "c", map[string]any{doc.RowID: "bad"}); err == nil {
		t.Fatal("point lookup of a corrupt record should fail")
	}
}

func TestCloseClosesBackend(t *testing.T) {
	t.Parallel()
	b := newMapBackend()
	s := kv.New(b)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !b.closed {
		t.Fatal("backend not closed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Insert(context.Background(), "c", doc.Record{}); !errors.Is(err, docket.ErrStoreClosed) {
		t.Fatalf("Insert after Close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, docket.ErrStoreClosed) {
		t.Fatalf("Ping after Close: %v", err)
	}
}
