package jobdb

import (
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// Task groups the instances of one workload phase. Its status is only ever set from the statuses of its instances.
type Task struct {
	id                 string
	jobId              string
	taskType           string
	instances          []*Instance
	status             TaskStatus
	lastTransitionTime time.Time
}

// NewTask creates a pending task owning instances. The instances take on the profile of taskType.
func NewTask(id string, taskType string, instances []*Instance) *Task {
	profile := ProfileFor(taskType)
	for _, inst := range instances {
		inst.taskId = id
		inst.profile = profile
	}
	return &Task{
		id:        id,
		taskType:  taskType,
		instances: instances,
		status:    TaskPending,
	}
}

func (task *Task) Id() string {
	return task.id
}

func (task *Task) JobId() string {
	return task.jobId
}

func (task *Task) TaskType() string {
	return task.taskType
}

// Instances returns the instances of the task. The slice is a copy.
func (task *Task) Instances() []*Instance {
	rv := make([]*Instance, len(task.instances))
	copy(rv, task.instances)
	return rv
}

func (task *Task) Status() TaskStatus {
	return task.status
}

func (task *Task) LastTransitionTime() time.Time {
	return task.lastTransitionTime
}

// Required is the sum of the requirements of all instances.
func (task *Task) Required() resources.Vector {
	var rv resources.Vector
	for _, inst := range task.instances {
		rv = rv.Add(inst.required)
	}
	return rv
}

func (task *Task) CurrentUsage() resources.Vector {
	var rv resources.Vector
	for _, inst := range task.instances {
		rv = rv.Add(inst.currentUsage)
	}
	return rv
}

func (task *Task) PeakUsage() resources.Vector {
	var rv resources.Vector
	for _, inst := range task.instances {
		rv = rv.Add(inst.peakUsage)
	}
	return rv
}

// SetStatus records a newly derived status. Moving out of a terminal status is an error.
func (task *Task) SetStatus(status TaskStatus, now time.Time) error {
	if task.status.IsTerminal() && status != task.status {
		return errors.WithStack(&ErrTerminalStatus{
			Kind:   "task",
			Id:     task.id,
			Status: task.status.String(),
			Target: status.String(),
		})
	}
	if status != task.status {
		task.status = status
		task.lastTransitionTime = now
	}
	return nil
}

func (task *Task) nextAttempt(attempt int) *Task {
	instances := make([]*Instance, len(task.instances))
	for i, inst := range task.instances {
		instances[i] = inst.nextRun(attempt)
	}
	return &Task{
		id:        task.id,
		jobId:     task.jobId,
		taskType:  task.taskType,
		instances: instances,
		status:    TaskPending,
	}
}
