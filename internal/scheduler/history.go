package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/armadaproject/clustersim/internal/scheduler/lifecycle"
)

// StatusChange is an entry of the status change log.
// Entries for jobs have an empty InstanceId and a nil RunId.
type StatusChange struct {
	JobId      string
	InstanceId string
	RunId      uuid.UUID
	Old        string
	New        string
	Time       time.Time
}

// IsJobChange returns true if the entry records a change of job status.
func (c StatusChange) IsJobChange() bool {
	return c.InstanceId == ""
}

func statusChangeFromTransition(t lifecycle.Transition) StatusChange {
	return StatusChange{
		JobId:      t.JobId,
		InstanceId: t.InstanceId,
		RunId:      t.RunId,
		Old:        t.From.String(),
		New:        t.To.String(),
		Time:       t.Time,
	}
}
