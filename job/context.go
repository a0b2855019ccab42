package job

import "context"

type accessorKey struct{}

// WithAccessor returns a context carrying the accessor of the job running
// in it. Code started by a job reads it to link child jobs.
func WithAccessor(ctx context.Context, a *Accessor) context.Context {
	return context.WithValue(ctx, accessorKey{}, a)
}

// FromContext returns the accessor of the job running in ctx, if any.
func FromContext(ctx context.Context) (*Accessor, bool) {
	a, ok := ctx.Value(accessorKey{}).(*Accessor)
	return a, ok
}

// IDFromContext returns the id of the job running in ctx, or "".
func IDFromContext(ctx context.Context) string {
	if a, ok := FromContext(ctx); ok {
		return a.ID()
	}
	return ""
}
