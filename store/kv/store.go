package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/docket"
	"github.com/xraph/docket/codec"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/update"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithCodec sets the record codec. Defaults to msgpack.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithQueryCacheSize sets how many compiled queries are kept.
func WithQueryCacheSize(n int) Option {
	return func(s *Store) { s.queries = store.NewQueryCache(n) }
}

// Store implements store.Store on top of a Backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
	codec   codec.Codec
	queries *store.QueryCache
	logger  *slog.Logger
	closed  bool
}

// New wraps backend. The Store owns the backend and closes it on Close.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		codec:   codec.Msgpack{},
		queries: store.NewQueryCache(store.DefaultQueryCacheSize),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return docket.ErrStoreClosed
	}
	return s.backend.Ping(ctx)
}

// Close closes the backend. Further calls fail with docket.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Query returns the matching records. An equality on ROW_ID alone is a
// point lookup.
func (s *Store) Query(ctx context.Context, collection string, q map[string]any, opts ...store.QueryOption) ([]doc.Record, error) {
	o := store.NewQueryOpts(opts...)
	if s.isClosed() {
		return nil, docket.ErrStoreClosed
	}

	if rowID, ok := store.RowIDOnly(q); ok {
		rec, err := s.get(ctx, collection, rowID)
		if errors.Is(err, ErrKeyNotFound) {
			return []doc.Record{}, nil
		}
		if err != nil {
			return nil, err
		}
		return o.Shape([]doc.Record{rec}), nil
	}

	match, err := s.queries.Compile(q)
	if err != nil {
		return nil, err
	}
	out := make([]doc.Record, 0)
	err = s.scan(ctx, collection, func(_ string, rec doc.Record) error {
		if match(rec) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.Shape(out), nil
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Insert stores d.
func (s *Store) Insert(ctx context.Context, collection string, d doc.Record) (string, error) {
	rec, rowID := store.PrepareInsert(d)
	data, err := s.codec.Encode(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", docket.ErrStoreClosed
	}

	_, err = s.backend.Get(ctx, collection, rowID)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: %s", store.ErrDuplicateID, rowID)
	case !errors.Is(err, ErrKeyNotFound):
		return "", err
	}

	var b Batch
	b.Put(collection, rowID, data)
	if err := s.backend.Write(ctx, &b); err != nil {
		return "", err
	}
	return rowID, nil
}

// Update applies changes to every selected record in one batch.
func (s *Store) Update(ctx context.Context, collection string, selector any, changes map[string]any, upsert bool) (int, error) {
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

	matched, err := s.selectLocked(ctx, collection, sel)
	if err != nil {
		return 0, err
	}

	var b Batch
	if len(matched) == 0 {
		if !upsert {
			return 0, nil
		}
		rec := sel.Upserted()
		if err := u.Apply(rec); err != nil {
			return 0, err
		}
		rec, rowID := store.PrepareInsert(rec)
		if err := s.put(&b, collection, rowID, rec); err != nil {
			return 0, err
		}
		return 1, s.backend.Write(ctx, &b)
	}

	for _, m := range matched {
		if err := u.Apply(m.rec); err != nil {
			return 0, fmt.Errorf("update %s: %w", m.rowID, err)
		}
		m.rec[doc.RowID] = m.rowID
		if err := s.put(&b, collection, m.rowID, m.rec); err != nil {
			return 0, err
		}
	}
	if err := s.backend.Write(ctx, &b); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// Replace merges d onto the stored record.
func (s *Store) Replace(ctx context.Context, collection, rowID string, d doc.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}

	prior, err := s.get(ctx, collection, rowID)
	if errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, rowID)
	}
	if err != nil {
		return err
	}
	merged, err := store.Merge(prior, d)
	if err != nil {
		return err
	}
	var b Batch
	if err := s.put(&b, collection, rowID, merged); err != nil {
		return err
	}
	return s.backend.Write(ctx, &b)
}

// Delete removes the selected records.
func (s *Store) Delete(ctx context.Context, collection string, selector any) (int, error) {
	sel, err := store.ParseSelector(selector)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, docket.ErrStoreClosed
	}

	matched, err := s.selectLocked(ctx, collection, sel)
	if err != nil || len(matched) == 0 {
		return 0, err
	}
	var b Batch
	for _, m := range matched {
		b.Delete(collection, m.rowID)
	}
	if err := s.backend.Write(ctx, &b); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// DropCollection removes a collection.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}
	return s.backend.DropCollection(ctx, collection)
}

// Purge removes every collection.
func (s *Store) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docket.ErrStoreClosed
	}
	return s.backend.DropAll(ctx)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

type hit struct {
	rowID string
	rec   doc.Record
}

func (s *Store) selectLocked(ctx context.Context, collection string, sel store.Selector) ([]hit, error) {
	if sel.RowID != "" {
		rec, err := s.get(ctx, collection, sel.RowID)
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []hit{{rowID: sel.RowID, rec: rec}}, nil
	}

	pred, err := s.queries.Compile(sel.Query)
	if err != nil {
		return nil, err
	}
	var out []hit
	err = s.scan(ctx, collection, func(rowID string, rec doc.Record) error {
		if pred(rec) {
			out = append(out, hit{rowID: rowID, rec: rec})
		}
		return nil
	})
	return out, err
}

func (s *Store) get(ctx context.Context, collection, rowID string) (doc.Record, error) {
	data, err := s.backend.Get(ctx, collection, rowID)
	if err != nil {
		return nil, err
	}
	rec, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("kv: %s/%s: %w", collection, rowID, err)
	}
	return rec, nil
}

func (s *Store) scan(ctx context.Context, collection string, fn func(rowID string, rec doc.Record) error) error {
	return s.backend.Scan(ctx, collection, func(key string, value []byte) error {
		rec, err := s.codec.Decode(value)
		if err != nil {
			s.logger.Warn("kv: skipping undecodable record",
				slog.String("collection", collection),
				slog.String("row_id", key),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fn(key, rec)
	})
}

func (s *Store) put(b *Batch, collection, rowID string, rec doc.Record) error {
	data, err := s.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("kv: encode %s/%s: %w", collection, rowID, err)
	}
	b.Put(collection, rowID, data)
	return nil
}
