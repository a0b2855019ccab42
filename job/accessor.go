package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/docket"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
	"github.com/xraph/docket/projection"
	"github.com/xraph/docket/store"
)

// Accessor is the handle job code uses to read and write its own record.
type Accessor struct {
	id         string
	store      store.Store
	collection string
}

// NewAccessor returns an accessor for the job stored under jobID.
func NewAccessor(st store.Store, collection, jobID string) *Accessor {
	return &Accessor{id: jobID, store: st, collection: collection}
}

// ID returns the job id.
func (a *Accessor) ID() string { return a.id }

// Progress appends msg to the job's progress list and bumps its message
// count in a single update.
func (a *Accessor) Progress(ctx context.Context, msg string) error {
	_, err := a.store.Update(ctx, a.collection, a.id, map[string]any{
		"$push": map[string]any{FieldProgress: msg},
		"$inc":  map[string]any{FieldNMsgs: 1},
	}, false)
	return err
}

// Set writes a custom field. Fields owned by the job manager are rejected
// with docket.ErrReservedField.
func (a *Accessor) Set(ctx context.Context, key string, value any) error {
	if IsReserved(key) {
		return fmt.Errorf("%w: %q", docket.ErrReservedField, key)
	}
	_, err := a.store.Update(ctx, a.collection, a.id, map[string]any{
		"$set": map[string]any{key: value},
	}, false)
	return err
}

// Get reads a field (dotted paths allowed). ok is false when it is absent.
func (a *Accessor) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	rec, err := a.record(ctx, projection.Only(dotpath.Split(key)[0]))
	if err != nil {
		return nil, false, err
	}
	value, ok = dotpath.Get(rec, key)
	return value, ok, nil
}

// Job loads the typed view of the record.
func (a *Accessor) Job(ctx context.Context) (*Job, error) {
	rec, err := a.record(ctx, projection.All())
	if err != nil {
		return nil, err
	}
	return FromRecord(rec)
}

// IsCancelled reports whether cancellation was requested. A deleted record
// counts as cancelled.
func (a *Accessor) IsCancelled(ctx context.Context) (bool, error) {
	rec, err := a.record(ctx, projection.Only(FieldCancel))
	if err != nil {
		if errors.Is(err, docket.ErrJobNotFound) {
			return true, nil
		}
		return false, err
	}
	return rec[FieldCancel] == true, nil
}

// CheckCancelled returns docket.ErrJobCancelled once cancellation was
// requested, so job code can bail out with
//
//	if err := j.CheckCancelled(ctx); err != nil {
//		return err
//	}
func (a *Accessor) CheckCancelled(ctx context.Context) error {
	cancelled, err := a.IsCancelled(ctx)
	if err != nil {
		return err
	}
	if cancelled {
		return fmt.Errorf("%w: %s", docket.ErrJobCancelled, a.id)
	}
	return nil
}

// AddChild records childID in the job's child_jobs list.
func (a *Accessor) AddChild(ctx context.Context, childID string) error {
	_, err := a.store.Update(ctx, a.collection, a.id, map[string]any{
		"$push": map[string]any{FieldChildJobs: childID},
	}, false)
	return err
}

func (a *Accessor) record(ctx context.Context, fields projection.Fields) (doc.Record, error) {
	recs, err := a.store.Query(ctx, a.collection, map[string]any{doc.RowID: a.id}, store.WithFields(fields))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", docket.ErrJobNotFound, a.id)
	}
	return recs[0], nil
}
