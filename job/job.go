package job

import (
	"fmt"
	"time"

	"github.com/xraph/docket/doc"
)

// State is the lifecycle state of a job, derived from its record.
type State string

const (
	// StateCreated means the record exists but the code has not started.
	StateCreated State = "created"
	// StateRunning means the code is executing.
	StateRunning State = "running"
	// StateEnded means the code returned without error.
	StateEnded State = "ended"
	// StateError means the code failed or the job could not be resumed.
	StateError State = "error"
)

// Job is the typed view of a job record.
type Job struct {
	ID        string
	Name      string
	User      string
	Title     string
	Parent    string
	Started   time.Time
	Ended     *time.Time
	Heartbeat *time.Time
	Progress  []string
	NMsgs     int
	Cancel    bool
	Error     *Error
	Spec      *Spec
	PID       int
	NRestarts int
	ChildJobs []string
	Timeout   time.Duration

	// Props holds every non-reserved field, such as values written through
	// Accessor.Set or start-time properties.
	Props map[string]any
}

// FromRecord decodes a job record.
func FromRecord(r doc.Record) (*Job, error) {
	rowID, ok := doc.ID(r)
	if !ok {
		return nil, fmt.Errorf("job: record has no %s", doc.RowID)
	}
	j := &Job{
		ID:     rowID,
		Name:   str(r[FieldName]),
		User:   str(r[FieldUser]),
		Title:  str(r[FieldTitle]),
		Parent: str(r[FieldParent]),
		Cancel: r[FieldCancel] == true,
		Props:  map[string]any{},
	}
	if t, ok := TimeOf(r[FieldStarted]); ok {
		j.Started = t
	}
	if t, ok := TimeOf(r[FieldEnded]); ok {
		j.Ended = &t
	}
	if t, ok := TimeOf(r[FieldHeartbeat]); ok {
		j.Heartbeat = &t
	}
	if n, ok := doc.AsInt64(r[FieldNMsgs]); ok {
		j.NMsgs = int(n)
	}
	if n, ok := doc.AsInt64(r[FieldPID]); ok {
		j.PID = int(n)
	}
	if n, ok := doc.AsInt64(r[FieldNRestarts]); ok {
		j.NRestarts = int(n)
	}
	if secs, ok := doc.AsNumber(r[FieldTimeout]); ok && secs > 0 {
		j.Timeout = time.Duration(secs * float64(time.Second))
	}
	if list, ok := r[FieldProgress].([]any); ok {
		j.Progress = make([]string, len(list))
		for i, m := range list {
			j.Progress[i] = str(m)
		}
	}
	if list, ok := r[FieldChildJobs].([]any); ok {
		for _, c := range list {
			j.ChildJobs = append(j.ChildJobs, str(c))
		}
	}
	if v, ok := r[FieldError]; ok && v != nil {
		j.Error = ErrorFromValue(v)
	}
	if v, ok := r[FieldSpec]; ok && v != nil {
		spec, err := SpecFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", rowID, err)
		}
		j.Spec = spec
	}
	for k, v := range r {
		if k == FieldTitle || k == FieldParent || IsReserved(k) {
			continue
		}
		j.Props[k] = doc.Clone(v)
	}
	return j, nil
}

// State derives the job's lifecycle state.
func (j *Job) State() State {
	switch {
	case j.Ended != nil && j.Error != nil:
		return StateError
	case j.Ended != nil:
		return StateEnded
	case j.Heartbeat == nil:
		return StateCreated
	}
	return StateRunning
}

// IsEnded reports whether the job has finished, successfully or not.
func (j *Job) IsEnded() bool { return j.Ended != nil }

// CancelRequested reports whether cancellation was asked for a job that is
// still live.
func (j *Job) CancelRequested() bool { return j.Cancel && j.Ended == nil }

// Abandoned reports whether a live job's heartbeat (or, when it never beat,
// its start time) is older than threshold at now.
func (j *Job) Abandoned(now time.Time, threshold time.Duration) bool {
	if j.Ended != nil {
		return false
	}
	last := j.Started
	if j.Heartbeat != nil {
		last = *j.Heartbeat
	}
	return now.Sub(last) > threshold
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}
