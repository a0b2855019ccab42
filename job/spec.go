package job

import (
	"errors"
	"fmt"

	"github.com/xraph/docket/doc"
)

// ErrBadSpec is returned for stored specs that cannot be decoded.
var ErrBadSpec = errors.New("job: malformed spec")

// Spec is a serializable reference to registered job code plus its
// arguments: enough to run the job again in a fresh process.
type Spec struct {
	Callable string
	Kwargs   map[string]any
}

// Record returns the spec in its stored form.
func (s Spec) Record() map[string]any {
	kwargs, _ := doc.Clone(s.Kwargs).(map[string]any)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{
		"callable": s.Callable,
		"kwargs":   kwargs,
	}
}

// SpecFromValue decodes the stored form produced by Spec.Record.
func SpecFromValue(v any) (*Spec, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrBadSpec, v)
	}
	callable, _ := m["callable"].(string)
	if callable == "" {
		return nil, fmt.Errorf("%w: missing callable", ErrBadSpec)
	}
	s := &Spec{Callable: callable, Kwargs: map[string]any{}}
	switch kw := m["kwargs"].(type) {
	case nil:
	case map[string]any:
		s.Kwargs = doc.CloneRecord(kw)
	default:
		return nil, fmt.Errorf("%w: kwargs is %T", ErrBadSpec, kw)
	}
	return s, nil
}
