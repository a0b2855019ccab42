package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/docket"
)

// Error codes set by docket itself.
const (
	CodeInternal      = "internal"
	CodePanic         = "panic"
	CodeTimeout       = "timeout"
	CodeCancelled     = "cancelled"
	CodeCommandFailed = "command-failed"
	CodeServerRestart = "server-restart"
)

// Error is the structured failure stored on a job. Code, Message and
// Details are public and persisted to the record; Private is only logged.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Private map[string]any

	cause error
}

// NewError creates an error with the given code and public message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetail adds a public detail and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithPrivate adds a log-only detail and returns e.
func (e *Error) WithPrivate(key string, value any) *Error {
	if e.Private == nil {
		e.Private = map[string]any{}
	}
	e.Private[key] = value
	return e
}

// WithCause records the underlying error for errors.Is/As and returns e.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Public returns the public-safe form persisted to the job record.
func (e *Error) Public() map[string]any {
	out := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		out["details"] = details
	}
	return out
}

// LogValue implements slog.LogValuer, including the private details.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.Code),
		slog.String("message", e.Message),
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	if len(e.Private) > 0 {
		attrs = append(attrs, slog.Any("private", e.Private))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// Wrap converts err into an *Error. An *Error anywhere in the chain is
// returned as is; deadline and cancellation errors get their own codes.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var je *Error
	if errors.As(err, &je) {
		return je
	}
	code := CodeInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, docket.ErrJobCancelled):
		code = CodeCancelled
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
		Private: map[string]any{"type": fmt.Sprintf("%T", err)},
		cause:   err,
	}
}

// ErrorFromValue decodes a stored error. Values that are not in the
// structured form become an internal error carrying their text.
func ErrorFromValue(v any) *Error {
	m, ok := v.(map[string]any)
	if !ok {
		return &Error{Code: CodeInternal, Message: fmt.Sprint(v)}
	}
	e := &Error{}
	e.Code, _ = m["code"].(string)
	e.Message, _ = m["message"].(string)
	if d, ok := m["details"].(map[string]any); ok {
		e.Details = d
	}
	if e.Code == "" {
		e.Code = CodeInternal
	}
	return e
}
