package jobdb

import (
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// Job is the schedulable unit. Jobs are identified by id; two Job values with the same id are the same job.
type Job struct {
	id      string
	jobType string
	// Lower values are more urgent.
	priority int
	// Spot jobs run on interruptible capacity: they are preferred preemption victims and are checkpointed when evicted.
	spot         bool
	dependencies []string
	// Tasks of the current attempt.
	tasks []*Task
	// Tasks of earlier attempts, oldest first. Never modified.
	previousAttempts   [][]*Task
	status             JobStatus
	submitTime         time.Time
	startTime          time.Time
	endTime            time.Time
	lastTransitionTime time.Time
	retryCount         int
	maxRetries         int
	throttleReason     string
}

// NewJob creates a pending job owning tasks.
func NewJob(id string, jobType string, priority int, spot bool, dependencies []string, tasks []*Task, maxRetries int) (*Job, error) {
	if id == "" {
		return nil, errors.WithStack(&armadaerrors.ErrInvalidArgument{Name: "id", Value: id, Message: "job id must not be empty"})
	}
	if priority < 0 {
		return nil, errors.WithStack(&armadaerrors.ErrInvalidArgument{Name: "priority", Value: priority, Message: "must not be negative"})
	}
	if maxRetries < 0 {
		return nil, errors.WithStack(&armadaerrors.ErrInvalidArgument{Name: "maxRetries", Value: maxRetries, Message: "must not be negative"})
	}
	numInstances := 0
	for _, task := range tasks {
		task.jobId = id
		for _, inst := range task.instances {
			inst.jobId = id
			inst.spot = spot
			numInstances++
		}
	}
	if numInstances == 0 {
		return nil, errors.WithStack(&armadaerrors.ErrInvalidArgument{Name: "tasks", Value: len(tasks), Message: "a job needs at least one instance"})
	}
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return &Job{
		id:           id,
		jobType:      jobType,
		priority:     priority,
		spot:         spot,
		dependencies: deps,
		tasks:        tasks,
		status:       JobPending,
		maxRetries:   maxRetries,
	}, nil
}

func (job *Job) Id() string {
	return job.id
}

func (job *Job) JobType() string {
	return job.jobType
}

func (job *Job) Priority() int {
	return job.priority
}

func (job *Job) Spot() bool {
	return job.spot
}

// Dependencies returns the ids of the jobs this job depends on. The slice is a copy.
func (job *Job) Dependencies() []string {
	rv := make([]string, len(job.dependencies))
	copy(rv, job.dependencies)
	return rv
}

// Tasks returns the tasks of the current attempt. The slice is a copy.
func (job *Job) Tasks() []*Task {
	rv := make([]*Task, len(job.tasks))
	copy(rv, job.tasks)
	return rv
}

// Instances returns the instances of the current attempt across all tasks.
func (job *Job) Instances() []*Instance {
	var rv []*Instance
	for _, task := range job.tasks {
		rv = append(rv, task.instances...)
	}
	return rv
}

// PreviousAttempts returns the tasks of earlier attempts, oldest first.
func (job *Job) PreviousAttempts() [][]*Task {
	rv := make([][]*Task, len(job.previousAttempts))
	copy(rv, job.previousAttempts)
	return rv
}

// Attempt is the zero-based index of the current attempt.
func (job *Job) Attempt() int {
	return len(job.previousAttempts)
}

func (job *Job) Status() JobStatus {
	return job.status
}

func (job *Job) SubmitTime() time.Time {
	return job.submitTime
}

func (job *Job) StartTime() time.Time {
	return job.startTime
}

func (job *Job) EndTime() time.Time {
	return job.endTime
}

func (job *Job) LastTransitionTime() time.Time {
	return job.lastTransitionTime
}

func (job *Job) RetryCount() int {
	return job.retryCount
}

func (job *Job) MaxRetries() int {
	return job.maxRetries
}

func (job *Job) ThrottleReason() string {
	return job.throttleReason
}

// Required is the total requirement of the current attempt.
func (job *Job) Required() resources.Vector {
	var rv resources.Vector
	for _, task := range job.tasks {
		rv = rv.Add(task.Required())
	}
	return rv
}

func (job *Job) CurrentUsage() resources.Vector {
	var rv resources.Vector
	for _, task := range job.tasks {
		rv = rv.Add(task.CurrentUsage())
	}
	return rv
}

func (job *Job) PeakUsage() resources.Vector {
	var rv resources.Vector
	for _, task := range job.tasks {
		rv = rv.Add(task.PeakUsage())
	}
	return rv
}

// Progress is the mean progress of the instances of the current attempt.
func (job *Job) Progress(now time.Time) float64 {
	instances := job.Instances()
	if len(instances) == 0 {
		return 0
	}
	total := 0.0
	for _, inst := range instances {
		total += inst.Progress(now)
	}
	return total / float64(len(instances))
}

// IsPreempting returns true if any instance of the current attempt is waiting out its preemption grace period.
func (job *Job) IsPreempting() bool {
	for _, task := range job.tasks {
		for _, inst := range task.instances {
			if inst.status == InstancePreempting {
				return true
			}
		}
	}
	return false
}

// SetStatus moves the job to status at time now. Moving out of a terminal status is an error.
func (job *Job) SetStatus(status JobStatus, now time.Time) error {
	if job.status.IsTerminal() && status != job.status {
		return errors.WithStack(&ErrTerminalStatus{
			Kind:   "job",
			Id:     job.id,
			Status: job.status.String(),
			Target: status.String(),
		})
	}
	if status == job.status {
		return nil
	}
	job.status = status
	job.lastTransitionTime = now
	if status == JobRunning {
		job.throttleReason = ""
		if job.startTime.IsZero() {
			job.startTime = now
		}
	}
	if status.IsTerminal() {
		job.endTime = now
	}
	return nil
}

func (job *Job) SetSubmitTime(t time.Time) {
	job.submitTime = t
}

func (job *Job) SetThrottleReason(reason string) {
	job.throttleReason = reason
}

// CanRetry returns true if the retry budget is not yet exhausted.
func (job *Job) CanRetry() bool {
	return job.retryCount < job.maxRetries
}

// Retry archives the current attempt, creates fresh runs of every instance and moves the job to preparing.
func (job *Job) Retry(now time.Time) error {
	if job.status.IsTerminal() {
		return errors.WithStack(&ErrTerminalStatus{
			Kind:   "job",
			Id:     job.id,
			Status: job.status.String(),
			Target: JobPreparing.String(),
		})
	}
	if !job.CanRetry() {
		return errors.Errorf("job %s has used all %d retries", job.id, job.maxRetries)
	}
	attempt := job.Attempt() + 1
	tasks := make([]*Task, len(job.tasks))
	for i, task := range job.tasks {
		tasks[i] = task.nextAttempt(attempt)
	}
	job.previousAttempts = append(job.previousAttempts, job.tasks)
	job.tasks = tasks
	job.retryCount++
	return job.SetStatus(JobPreparing, now)
}
