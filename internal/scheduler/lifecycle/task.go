package lifecycle

import (
	"time"

	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// AggregateTaskStatus derives the status of a task from the statuses of its instances.
func AggregateTaskStatus(statuses []jobdb.InstanceStatus) jobdb.TaskStatus {
	if len(statuses) == 0 {
		return jobdb.TaskPending
	}
	allTerminated := true
	anyRunning := false
	anyInterrupted := false
	for _, s := range statuses {
		switch s {
		case jobdb.InstanceFailed:
			return jobdb.TaskFailed
		case jobdb.InstanceInterrupted:
			anyInterrupted = true
		case jobdb.InstancePending:
		case jobdb.InstanceTerminated:
		default:
			anyRunning = true
		}
		if s != jobdb.InstanceTerminated {
			allTerminated = false
		}
	}
	switch {
	case allTerminated:
		return jobdb.TaskTerminated
	case anyRunning:
		return jobdb.TaskRunning
	case anyInterrupted:
		return jobdb.TaskInterrupted
	default:
		return jobdb.TaskPending
	}
}

// UpdateTask re-derives the status of task. Terminal tasks are left as they are.
func UpdateTask(task *jobdb.Task, now time.Time) error {
	if task.Status().IsTerminal() {
		return nil
	}
	instances := task.Instances()
	statuses := make([]jobdb.InstanceStatus, len(instances))
	for i, inst := range instances {
		statuses[i] = inst.Status()
	}
	return task.SetStatus(AggregateTaskStatus(statuses), now)
}
