package jobdb

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
)

// InstanceStatus is the lifecycle status of a single instance run.
type InstanceStatus int

const (
	InstancePending InstanceStatus = iota
	InstanceProvisioning
	InstanceStarting
	InstanceRunning
	InstanceDegraded
	InstanceUnhealthy
	InstancePreempting
	InstanceStopping
	InstanceTerminated
	InstanceFailed
	InstanceInterrupted
)

var instanceStatusNames = map[InstanceStatus]string{
	InstancePending:      "pending",
	InstanceProvisioning: "provisioning",
	InstanceStarting:     "starting",
	InstanceRunning:      "running",
	InstanceDegraded:     "degraded",
	InstanceUnhealthy:    "unhealthy",
	InstancePreempting:   "preempting",
	InstanceStopping:     "stopping",
	InstanceTerminated:   "terminated",
	InstanceFailed:       "failed",
	InstanceInterrupted:  "interrupted",
}

func (s InstanceStatus) String() string {
	if name, ok := instanceStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal returns true for terminated, failed and interrupted.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceTerminated || s == InstanceFailed || s == InstanceInterrupted
}

// IsActive returns true if the instance has been started and has not yet reached a terminal status.
func (s InstanceStatus) IsActive() bool {
	return s != InstancePending && !s.IsTerminal()
}

// ParseInstanceStatus is the inverse of InstanceStatus.String.
func ParseInstanceStatus(name string) (InstanceStatus, error) {
	for s, n := range instanceStatusNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, errors.WithStack(&armadaerrors.ErrInvalidArgument{Name: "instanceStatus", Value: name})
}

// TaskStatus is derived from the statuses of a task's instances.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskInterrupted
	TaskTerminated
	TaskFailed
)

var taskStatusNames = map[TaskStatus]string{
	TaskPending:     "pending",
	TaskRunning:     "running",
	TaskInterrupted: "interrupted",
	TaskTerminated:  "terminated",
	TaskFailed:      "failed",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskTerminated || s == TaskFailed || s == TaskInterrupted
}

// JobStatus is the lifecycle status of a job.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobQueued
	JobPreparing
	JobRunning
	JobPaused
	JobResuming
	JobThrottled
	JobCompleted
	JobFailed
	JobInterrupted
)

var jobStatusNames = map[JobStatus]string{
	JobPending:     "pending",
	JobQueued:      "queued",
	JobPreparing:   "preparing",
	JobRunning:     "running",
	JobPaused:      "paused",
	JobResuming:    "resuming",
	JobThrottled:   "throttled",
	JobCompleted:   "completed",
	JobFailed:      "failed",
	JobInterrupted: "interrupted",
}

// AllJobStatuses lists every job status in declaration order.
var AllJobStatuses = []JobStatus{
	JobPending, JobQueued, JobPreparing, JobRunning, JobPaused,
	JobResuming, JobThrottled, JobCompleted, JobFailed, JobInterrupted,
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobInterrupted
}

// ErrTerminalStatus is returned when something attempts to move an entity out of a terminal status.
type ErrTerminalStatus struct {
	Kind   string // "job", "task" or "instance"
	Id     string
	Status string
	Target string
}

func (err *ErrTerminalStatus) Error() string {
	return "cannot move " + err.Kind + " " + err.Id + " from terminal status " + err.Status + " to " + err.Target
}
