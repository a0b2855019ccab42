// Package docket provides an embedded document store with a small
// MongoDB-like query and update language, and a background job manager
// that persists its jobs into that store.
//
// Docket is designed as a library, not a service. Pick a store backend,
// hand it to the job manager, and register resumable jobs as ordinary Go
// functions.
//
// # Quick Start
//
//	st := memory.New()
//	m := manager.New(st, manager.WithLogger(logger))
//
//	jobID, err := m.StartCode(ctx, func(ctx context.Context, j *job.Accessor) error {
//	    return j.Progress(ctx, "hello")
//	}, manager.Name("greet"))
//
// # Architecture
//
// The store layer is built from small leaf packages: dotpath resolves
// dotted field paths, update applies $set/$unset/$push/$inc documents,
// query compiles query documents into predicates and projection shapes
// result records. store/memory is the reference backend; store/kv runs
// the same semantics over pebble or redis.
//
// The manager package schedules job code on goroutines, stamps heartbeats,
// detects abandoned jobs after a crash and resumes jobs that carry a
// serializable job.Spec.
//
// Job ids and generated record ids use TypeID: type-prefixed, K-sortable,
// UUIDv7-based identifiers.
package docket
