package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// Transition is a status change of a single instance run.
type Transition struct {
	JobId      string
	InstanceId string
	RunId      uuid.UUID
	From       jobdb.InstanceStatus
	To         jobdb.InstanceStatus
	Time       time.Time
}

// SetInstanceStatus moves inst to status and returns the corresponding transition.
// No transition is returned if inst already is in status. Moves not allowed by the instance lifecycle are an error.
func SetInstanceStatus(inst *jobdb.Instance, status jobdb.InstanceStatus, now time.Time) ([]Transition, error) {
	from := inst.Status()
	if from == status {
		return nil, nil
	}
	// Moves out of a terminal status are rejected by the instance itself.
	if !from.IsTerminal() && !ValidInstanceTransition(from, status) {
		return nil, errors.WithStack(&armadaerrors.ErrInvalidArgument{
			Name:    "status",
			Value:   status.String(),
			Message: fmt.Sprintf("instance %s of job %s cannot move from %s", inst.Id(), inst.JobId(), from),
		})
	}
	if err := inst.SetStatus(status, now); err != nil {
		return nil, err
	}
	return []Transition{{
		JobId:      inst.JobId(),
		InstanceId: inst.Id(),
		RunId:      inst.RunId(),
		From:       from,
		To:         status,
		Time:       now,
	}}, nil
}

// TearDown ends inst because its job is being torn down, routing it to a terminal status the lifecycle allows from
// where it is. Instances that have already ended are left alone.
func TearDown(inst *jobdb.Instance, now time.Time) ([]Transition, error) {
	status, ok := teardownStatuses[inst.Status()]
	if !ok {
		return nil, nil
	}
	return SetInstanceStatus(inst, status, now)
}
