package job

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/docket"
)

// HandlerFunc is a type-erased job handler taking keyword arguments.
// A typed Definition[T] is converted to a HandlerFunc at registration time
// by closing over a JSON conversion of the kwargs into T.
type HandlerFunc func(ctx context.Context, j *Accessor, kwargs map[string]any) error

type entry struct {
	handler HandlerFunc
	opts    Options
}

// Registry maps callable names to handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds an untyped handler under callable, replacing any previous
// registration.
func (r *Registry) Register(callable string, h HandlerFunc, opts ...Option) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[callable] = entry{handler: h, opts: o}
}

// RegisterDefinition registers a typed job definition. The kwargs map is
// converted to T through JSON before the typed handler runs.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, j *Accessor, kwargs map[string]any) error {
		var args T
		if len(kwargs) > 0 {
			raw, err := json.Marshal(kwargs)
			if err != nil {
				return fmt.Errorf("marshal kwargs for %q: %w", def.Name, err)
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fmt.Errorf("unmarshal kwargs for %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, j, args)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry{handler: handler, opts: def.Opts}
}

// Get returns the handler registered under callable.
func (r *Registry) Get(callable string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[callable]
	return e.handler, ok
}

// Options returns the defaults registered with callable.
func (r *Registry) Options(callable string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[callable]
	return e.opts, ok
}

// Lookup resolves spec into runnable code bound to the spec's kwargs.
func (r *Registry) Lookup(spec Spec) (Code, error) {
	h, ok := r.Get(spec.Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", docket.ErrUnknownCallable, spec.Callable)
	}
	kwargs := spec.Kwargs
	return func(ctx context.Context, j *Accessor) error {
		return h(ctx, j, kwargs)
	}, nil
}

// Names returns all registered callable names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}
