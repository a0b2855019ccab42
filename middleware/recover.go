package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/xraph/docket/job"
)

// Recover turns a panic in job code into a *job.Error with code "panic".
// The stack is kept as a private detail: logged, never persisted.
func Recover() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			jerr := job.NewError(job.CodePanic, fmt.Sprintf("panic in job %s: %v", j.Name, r)).
				WithPrivate("stack", string(debug.Stack()))
			if cause, ok := r.(error); ok {
				jerr.WithCause(cause)
			}
			err = jerr
		}()
		return next(ctx)
	}
}
