// Package rediskv is a kv.Backend on Redis. Each collection is one Hash
// mapping ROW_ID to the encoded record, so several processes can share a
// job collection.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := kv.New(rediskv.New(client))
//	if err := s.Ping(ctx); err != nil { ... }
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/docket/store/kv"
)

// Ensure Backend implements kv.Backend at compile time.
var _ kv.Backend = (*Backend)(nil)

// DefaultKeyPrefix prefixes every key written.
const DefaultKeyPrefix = "docket:"

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithKeyPrefix namespaces every key, so several stores can share one
// Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// Backend implements kv.Backend with Redis Hashes.
type Backend struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a Redis backend. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Backend {
	b := &Backend{client: client, prefix: DefaultKeyPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Client returns the underlying Redis client.
func (b *Backend) Client() redis.Cmdable { return b.client }

// Get implements kv.Backend.
func (b *Backend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	v, err := b.client.HGet(ctx, b.collectionKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docket/rediskv: hget: %w", err)
	}
	return v, nil
}

// Scan implements kv.Backend. The whole collection is fetched with one
// HGETALL and visited in key order.
func (b *Backend) Scan(ctx context.Context, collection string, fn func(key string, value []byte) error) error {
	all, err := b.client.HGetAll(ctx, b.collectionKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("docket/rediskv: hgetall: %w", err)
	}
	for _, k := range slices.Sorted(maps.Keys(all)) {
		if err := fn(k, []byte(all[k])); err != nil {
			return err
		}
	}
	return nil
}

// Write implements kv.Backend in one MULTI/EXEC transaction.
func (b *Backend) Write(ctx context.Context, batch *kv.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	pipe := b.client.TxPipeline()
	for _, op := range batch.Ops() {
		key := b.collectionKey(op.Collection)
		if op.Delete {
			pipe.HDel(ctx, key, op.Key)
			continue
		}
		pipe.HSet(ctx, key, op.Key, op.Value)
		pipe.SAdd(ctx, b.collectionsKey(), op.Collection)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("docket/rediskv: write: %w", err)
	}
	return nil
}

// DropCollection implements kv.Backend.
func (b *Backend) DropCollection(ctx context.Context, collection string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.collectionKey(collection))
	pipe.SRem(ctx, b.collectionsKey(), collection)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("docket/rediskv: drop %s: %w", collection, err)
	}
	return nil
}

// DropAll implements kv.Backend.
func (b *Backend) DropAll(ctx context.Context) error {
	names, err := b.client.SMembers(ctx, b.collectionsKey()).Result()
	if err != nil {
		return fmt.Errorf("docket/rediskv: list collections: %w", err)
	}
	keys := make([]string, 0, len(names)+1)
	for _, n := range names {
		keys = append(keys, b.collectionKey(n))
	}
	keys = append(keys, b.collectionsKey())
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("docket/rediskv: purge: %w", err)
	}
	b.logger.Debug("docket/rediskv: purged", slog.Int("collections", len(names)))
	return nil
}

// Ping verifies the Redis connection is alive.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (b *Backend) Close() error { return nil }
