// Package pebblekv is an embedded, persistent kv.Backend on Pebble.
//
// Usage:
//
//	b, err := pebblekv.Open("/var/lib/docket", nil)
//	if err != nil { ... }
//	s := kv.New(b)
//	defer s.Close()
//
// Keys are laid out as 'D' + collection + 0x00 + ROW_ID, so a collection is
// one contiguous key range. Collection names must not contain NUL bytes.
package pebblekv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/xraph/docket/store/kv"
)

// Ensure Backend implements kv.Backend at compile time.
var _ kv.Backend = (*Backend)(nil)

const (
	recordPrefix = 'D'
	sep          = 0x00
)

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithSync makes every write wait for the WAL to reach stable storage.
// Defaults to true.
func WithSync(sync bool) Option {
	return func(b *Backend) {
		if sync {
			b.writeOpts = pebble.Sync
		} else {
			b.writeOpts = pebble.NoSync
		}
	}
}

// Backend stores records in a Pebble database.
type Backend struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	logger    *slog.Logger
	closed    atomic.Bool
}

// Open opens (creating if needed) the database in dir. opts may be nil;
// pass an Options with FS set to vfs.NewMem() for an in-memory database.
func Open(dir string, opts *pebble.Options, bopts ...Option) (*Backend, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open %s: %w", dir, err)
	}
	b := &Backend{db: db, writeOpts: pebble.Sync, logger: slog.Default()}
	for _, o := range bopts {
		o(b)
	}
	b.logger.Debug("pebblekv: opened", slog.String("dir", dir))
	return b, nil
}

// DB returns the underlying database.
func (b *Backend) DB() *pebble.DB { return b.db }

// Get implements kv.Backend.
func (b *Backend) Get(_ context.Context, collection, key string) ([]byte, error) {
	if err := checkName(collection); err != nil {
		return nil, err
	}
	v, closer, err := b.db.Get(recordKey(collection, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

// Scan implements kv.Backend.
func (b *Backend) Scan(ctx context.Context, collection string, fn func(key string, value []byte) error) error {
	if err := checkName(collection); err != nil {
		return err
	}
	lower, upper := collectionRange(collection)
	it, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := string(it.Key()[len(lower):])
		if err := fn(key, bytes.Clone(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

// Write implements kv.Backend with a single Pebble batch.
func (b *Backend) Write(_ context.Context, batch *kv.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	pb := b.db.NewBatch()
	defer pb.Close()

	for _, op := range batch.Ops() {
		if err := checkName(op.Collection); err != nil {
			return err
		}
		k := recordKey(op.Collection, op.Key)
		var err error
		if op.Delete {
			err = pb.Delete(k, nil)
		} else {
			err = pb.Set(k, op.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("pebblekv: batch: %w", err)
		}
	}
	return pb.Commit(b.writeOpts)
}

// DropCollection implements kv.Backend.
func (b *Backend) DropCollection(_ context.Context, collection string) error {
	if err := checkName(collection); err != nil {
		return err
	}
	lower, upper := collectionRange(collection)
	return b.db.DeleteRange(lower, upper, b.writeOpts)
}

// DropAll implements kv.Backend.
func (b *Backend) DropAll(_ context.Context) error {
	return b.db.DeleteRange([]byte{recordPrefix}, []byte{recordPrefix + 1}, b.writeOpts)
}

// Ping reports pebble.ErrClosed once the database has been closed.
func (b *Backend) Ping(_ context.Context) error {
	if b.closed.Load() {
		return pebble.ErrClosed
	}
	return nil
}

// Close flushes and closes the database. Closing twice is a no-op.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

func recordKey(collection, key string) []byte {
	k := make([]byte, 0, len(collection)+len(key)+2)
	k = append(k, recordPrefix)
	k = append(k, collection...)
	k = append(k, sep)
	return append(k, key...)
}

// collectionRange returns the [lower, upper) bounds of a collection.
func collectionRange(collection string) (lower, upper []byte) {
	lower = recordKey(collection, "")
	upper = bytes.Clone(lower)
	upper[len(upper)-1] = sep + 1
	return lower, upper
}

func checkName(collection string) error {
	if strings.IndexByte(collection, sep) >= 0 {
		return fmt.Errorf("pebblekv: collection name %q contains NUL", collection)
	}
	return nil
}
