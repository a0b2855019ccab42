package job

import (
	"math"
	"time"

	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/dotpath"
)

// Job record field names.
const (
	FieldID        = doc.RowID
	FieldName      = "name"
	FieldUser      = "user"
	FieldTitle     = "title"
	FieldParent    = "parent"
	FieldStarted   = "started"
	FieldEnded     = "ended"
	FieldProgress  = "progress"
	FieldNMsgs     = "n_msgs"
	FieldHeartbeat = "heartbeat"
	FieldCancel    = "cancel"
	FieldError     = "error"
	FieldSpec      = "spec"
	FieldPID       = "pid"
	FieldNRestarts = "n_restarts"
	FieldChildJobs = "child_jobs"
	FieldTimeout   = "timeout"
)

var reserved = map[string]struct{}{
	FieldID:        {},
	FieldName:      {},
	FieldUser:      {},
	FieldStarted:   {},
	FieldEnded:     {},
	FieldProgress:  {},
	FieldNMsgs:     {},
	FieldHeartbeat: {},
	FieldCancel:    {},
	FieldError:     {},
	FieldSpec:      {},
	FieldPID:       {},
	FieldNRestarts: {},
	FieldChildJobs: {},
	FieldTimeout:   {},
}

// IsReserved reports whether writes to path would touch a field owned by
// the job manager. Only the first path segment matters.
func IsReserved(path string) bool {
	segs := dotpath.Split(path)
	_, ok := reserved[segs[0]]
	return ok
}

// Timestamp converts t to the float64 Unix seconds stored in records.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimeOf decodes a stored timestamp. It accepts Unix seconds of any numeric
// type and time.Time values; ok is false for nil and anything else.
func TimeOf(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	if _, isBool := v.(bool); isBool {
		return time.Time{}, false
	}
	f, ok := doc.AsNumber(v)
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), true
}
