// Package kv implements store.Store over a key-value backend.
//
// Records are encoded with a codec.Codec and kept one value per ROW_ID in a
// per-collection keyspace. Read-modify-write operations are serialized
// within one Store; concurrent writers in other processes sharing the same
// backend are not coordinated.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Backend.Get for absent keys.
var ErrKeyNotFound = errors.New("kv: key not found")

// Backend is a key-value space partitioned into collections.
type Backend interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Scan calls fn for every key in collection in ascending key order.
	// Returning an error from fn stops the scan with that error.
	Scan(ctx context.Context, collection string, fn func(key string, value []byte) error) error

	// Write applies every operation in b atomically.
	Write(ctx context.Context, b *Batch) error

	// DropCollection removes every key in collection.
	DropCollection(ctx context.Context, collection string) error

	// DropAll removes every collection.
	DropAll(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}

// Op is one write in a Batch. A nil Value with Delete unset stores an
// empty value.
type Op struct {
	Collection string
	Key        string
	Value      []byte
	Delete     bool
}

// Batch collects writes applied together by Backend.Write.
type Batch struct {
	ops []Op
}

// Put records a write of value under key.
func (b *Batch) Put(collection, key string, value []byte) {
	b.ops = append(b.ops, Op{Collection: collection, Key: key, Value: value})
}

// Delete records a removal of key.
func (b *Batch) Delete(collection, key string) {
	b.ops = append(b.ops, Op{Collection: collection, Key: key, Delete: true})
}

// Ops returns the recorded operations in order.
func (b *Batch) Ops() []Op { return b.ops }

// Len returns the number of recorded operations.
func (b *Batch) Len() int { return len(b.ops) }
