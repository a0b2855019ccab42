package manager

import (
	"context"
	"slices"
	"strings"

	"github.com/xraph/docket/job"
)

// Change is one entry of the status change feed.
type Change struct {
	JobID string
	// Deleted is set when the job vanished since the previous call.
	Deleted bool
	// Job is the current state; nil when Deleted.
	Job *job.Job
}

// statusKey holds the fields whose change is reported.
type statusKey struct {
	user    string
	name    string
	started float64
	ended   float64
	isEnded bool
	nMsgs   int
}

func keyOf(j *job.Job) statusKey {
	k := statusKey{
		user:    j.User,
		name:    j.Name,
		started: job.Timestamp(j.Started),
		nMsgs:   j.NMsgs,
	}
	if j.Ended != nil {
		k.ended = job.Timestamp(*j.Ended)
		k.isEnded = true
	}
	return k
}

// DetectStatusChanges returns one Change per job whose user, name,
// started, ended or n_msgs changed since the previous call on this
// manager, plus a deleted Change for every job that disappeared. The first
// call reports every job. Changes are ordered by job id.
func (m *Manager) DetectStatusChanges(ctx context.Context) ([]Change, error) {
	jobs, err := m.Jobs(ctx, nil)
	if err != nil {
		return nil, err
	}

	m.snapMu.Lock()
	defer m.snapMu.Unlock()

	next := make(map[string]statusKey, len(jobs))
	var changes []Change
	for _, j := range jobs {
		k := keyOf(j)
		next[j.ID] = k
		if prev, ok := m.snapshot[j.ID]; ok && prev == k {
			continue
		}
		changes = append(changes, Change{JobID: j.ID, Job: j})
	}
	for jobID := range m.snapshot {
		if _, ok := next[jobID]; !ok {
			changes = append(changes, Change{JobID: jobID, Deleted: true})
		}
	}
	m.snapshot = next

	slices.SortFunc(changes, func(a, b Change) int {
		return strings.Compare(a.JobID, b.JobID)
	})
	return changes, nil
}
