// Package memory implements store.Store with in-process maps.
//
// Every mutation runs under one write lock and is applied to a copy of the
// record that replaces the stored one only when the update succeeded, so a
// failing update never leaves a record half-written. Readers get deep
// copies.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/docket"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/update"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithQueryCacheSize sets how many compiled queries are kept.
func WithQueryCacheSize(n int) Option {
	return func(s *Store) { s.queries = store.NewQueryCache(n) }
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]doc.Record
	queries     *store.QueryCache
	closed      bool
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]doc.Record),
		queries:     store.NewQueryCache(store.DefaultQueryCacheSize),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docket.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is kept so tests can inspect it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Collections returns the names of all non-empty collections, sorted.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.collections))
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Query returns copies of the matching records. An equality on ROW_ID alone
// is answered without scanning.
func (s *Store) Query(_ context.Context, collection string, q map[string]any, opts ...store.QueryOption) ([]doc.Record, error) {
	o := store.NewQueryOpts(opts...)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, docket.ErrStoreClosed
	}

	coll := s.collections[collection]
	if rowID, ok := store.RowIDOnly(q); ok {
		rec, found := coll[rowID]
		if !found {
			return []doc.Record{}, nil
		}
		return o.Shape([]doc.Record{doc.CloneRecord(rec)}), nil
	}

	match, err := s.queries.Compile(q)
	if err != nil {
		return nil, err
	}

	out := make([]doc.Record, 0)
	for _, rowID := range slices.Sorted(maps.Keys(coll)) {
		rec := coll[rowID]
		if match(rec) {
			out = append(out, doc.CloneRecord(rec))
		}
	}
	return o.Shape(out), nil
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Insert stores a deep copy of d.
func (s *Store) Insert(_ context.Context, collection string, d doc.Record) (string, error) {
	rec, rowID := store.PrepareInsert(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", docket.ErrStoreClosed
	}

	coll := s.collection(collection)
	if _, exists := coll[rowID]; exists {
		return "", fmt.Errorf("%w: %s", store.ErrDuplicateID, rowID)
	}
	coll[rowID] = rec
	return rowID, nil
}

// Update applies changes to every selected record.
func (s *Store) Update(_ context.Context, collection string, selector any, changes map[string]any, upsert bool) (int, error) {
	sel, err := store.ParseSelector(selector)
	if err != nil {
		return 0, err
	}
	u, err := update.Parse(changes)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, docket.ErrStoreClosed
	}

	coll := s.collections[collection]
	rowIDs, err := s.selectLocked(coll, sel)
	if err != nil {
		return 0, err
	}

	if len(rowIDs) == 0 {
		if !upsert {
			return 0, nil
		}
		rec := sel.Upserted()
		if err := u.Apply(rec); err != nil {
			return 0, err
		}
		rec, rowID := store.PrepareInsert(rec)
		s.collection(collection)[rowID] = rec
		return 1, nil
	}

	next := make([]doc.Record, len(rowIDs))
	for i, rowID := range rowIDs {
		rec := doc.CloneRecord(coll[rowID])
		if err := u.Apply(rec); err != nil {
			return 0, fmt.Errorf("update %s: %w", rowID, err)
		}
		rec[doc.RowID] = rowID
		next[i] = rec
	}
	for i, rowID := range rowIDs {
		coll[rowID] = next[i]
	}
	return len(rowIDs), nil
}

// Replace merges d onto the stored record.
func (s *Store) Replace(_ context.Context, collection, rowID string, d doc.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}

	prior, ok := s.collections[collection][rowID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, rowID)
	}
	merged, err := store.Merge(prior, d)
	if err != nil {
		return err
	}
	s.collections[collection][rowID] = merged
	return nil
}

// Delete removes the selected records.
func (s *Store) Delete(_ context.Context, collection string, selector any) (int, error) {
	sel, err := store.ParseSelector(selector)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, docket.ErrStoreClosed
	}

	coll := s.collections[collection]
	rowIDs, err := s.selectLocked(coll, sel)
	if err != nil {
		return 0, err
	}
	for _, rowID := range rowIDs {
		delete(coll, rowID)
	}
	if len(coll) == 0 {
		delete(s.collections, collection)
	}
	return len(rowIDs), nil
}

// DropCollection removes a collection.
func (s *Store) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}
	delete(s.collections, collection)
	return nil
}

// Purge removes every collection.
func (s *Store) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}
	clear(s.collections)
	return nil
}

func (s *Store) collection(name string) map[string]doc.Record {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]doc.Record)
		s.collections[name] = coll
	}
	return coll
}

// selectLocked returns the ROW_IDs a selector addresses, sorted.
func (s *Store) selectLocked(coll map[string]doc.Record, sel store.Selector) ([]string, error) {
	if sel.RowID != "" {
		if _, ok := coll[sel.RowID]; ok {
			return []string{sel.RowID}, nil
		}
		return nil, nil
	}
	match, err := s.queries.Compile(sel.Query)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rowID := range slices.Sorted(maps.Keys(coll)) {
		if match(coll[rowID]) {
			out = append(out, rowID)
		}
	}
	return out, nil
}
