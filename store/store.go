// Package store defines the document store surface that the job manager and
// external callers persist records through.
//
// A store holds named collections of records keyed by ROW_ID ("_id").
// Collections are created implicitly on first write. Selectors passed to
// Update and Delete are either a bare ROW_ID string or a query document.
//
// # Available Backends
//
//   - store/memory: map-backed store for tests and single-process use
//   - store/kv: the same semantics over an ordered key-value backend
//   - store/kv/pebblekv: embedded persistent backend on Pebble
//   - store/kv/rediskv: shared backend on Redis hashes
package store

import (
	"context"
	"errors"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/projection"
)

var (
	// ErrNotFound is returned by Replace when the target record is missing.
	ErrNotFound = errors.New("store: record not found")

	// ErrDirectiveInReplace is returned when a replacement carries update
	// directives.
	ErrDirectiveInReplace = errors.New("store: replace document contains update directives")

	// ErrDuplicateID is returned when inserting a record whose ROW_ID is taken.
	ErrDuplicateID = errors.New("store: duplicate row id")

	// ErrBadSelector is returned for selectors that are neither a ROW_ID nor
	// a query document.
	ErrBadSelector = errors.New("store: selector must be a row id or a query document")
)

// Store is the document persistence interface.
type Store interface {
	// Insert stores a deep copy of d, generating a ROW_ID when d has none,
	// and returns the record's id.
	Insert(ctx context.Context, collection string, d doc.Record) (string, error)

	// Query returns deep copies of the records matching q, sorted, limited
	// and projected according to opts.
	Query(ctx context.Context, collection string, q map[string]any, opts ...QueryOption) ([]doc.Record, error)

	// Update applies changes to every record selected. With upsert set and no
	// match, a new record is synthesized and inserted. It returns the number
	// of records written.
	Update(ctx context.Context, collection string, selector any, changes map[string]any, upsert bool) (int, error)

	// Replace merges d onto the record stored under rowID. Fields absent from
	// d are kept.
	Replace(ctx context.Context, collection, rowID string, d doc.Record) error

	// Delete removes the selected records and returns how many were removed.
	Delete(ctx context.Context, collection string, selector any) (int, error)

	// DropCollection removes a collection and all its records.
	DropCollection(ctx context.Context, collection string) error

	// Purge removes every collection.
	Purge(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// QueryOpts holds the result shaping applied by Query.
type QueryOpts struct {
	Fields projection.Fields
	Sort   []projection.SortKey
	Limit  int
}

// QueryOption configures a Query call.
type QueryOption func(*QueryOpts)

// WithFields restricts the fields returned.
func WithFields(f projection.Fields) QueryOption {
	return func(o *QueryOpts) { o.Fields = f }
}

// WithSort orders the results. Only the first key's direction is used.
func WithSort(keys ...projection.SortKey) QueryOption {
	return func(o *QueryOpts) { o.Sort = keys }
}

// WithLimit caps the number of results. Zero means no limit.
func WithLimit(n int) QueryOption {
	return func(o *QueryOpts) { o.Limit = n }
}

// NewQueryOpts folds opts into a QueryOpts.
func NewQueryOpts(opts ...QueryOption) QueryOpts {
	var o QueryOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Shape applies the sort, limit and projection in o to records.
func (o QueryOpts) Shape(records []doc.Record) []doc.Record {
	return projection.ApplySortFieldsLimit(records, o.Sort, o.Limit, o.Fields)
}
