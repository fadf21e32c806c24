package jobdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// PerformanceMetrics is a snapshot of the simulated health signals of an instance.
type PerformanceMetrics struct {
	CpuUtilisation    float64
	MemoryUtilisation float64
	NetworkLatency    time.Duration
}

// InitialPerformanceMetrics is what a freshly started instance reports.
var InitialPerformanceMetrics = PerformanceMetrics{
	CpuUtilisation:    0.5,
	MemoryUtilisation: 0.5,
	NetworkLatency:    20 * time.Millisecond,
}

// Instance is a single run of the leaf execution unit of a job. A retry never reuses an Instance; it creates a new
// one with the same id and a fresh run id, so the status of any Instance value only moves forward.
type Instance struct {
	id     string
	taskId string
	jobId  string
	runId  uuid.UUID
	// Attempt of the owning job this run belongs to, starting at zero.
	attempt  int
	spot     bool
	profile  Profile
	required resources.Vector
	// Drawn once when the instance is created and carried across runs.
	errorRate float64
	status    InstanceStatus
	// Time of the last status change.
	lastTransitionTime time.Time
	startTime          time.Time
	// When the instance is expected to finish. Set when it starts.
	deadline time.Time
	// Deadline while active; the time it stopped once terminal.
	endTime      time.Time
	currentUsage resources.Vector
	peakUsage    resources.Vector
	metrics      PerformanceMetrics
	// Consecutive health checks breaching the profile's thresholds.
	consecutiveBreaches int
	restarts            int
	maxRestarts         int
	// Set while preempting: the instance is interrupted once simulated time reaches it.
	preemptionTime time.Time
	checkpointTime time.Time
	// Fraction of the work saved by checkpoints of earlier runs.
	checkpointProgress float64
}

// NewInstance creates a pending instance. errorRate is drawn by the caller, once, at workload creation. The profile
// is that of the task the instance is added to.
func NewInstance(id string, required resources.Vector, errorRate float64, maxRestarts int) *Instance {
	return &Instance{
		id:          id,
		runId:       uuid.New(),
		profile:     ProfileFor(DefaultTaskType),
		required:    required,
		errorRate:   errorRate,
		status:      InstancePending,
		metrics:     InitialPerformanceMetrics,
		maxRestarts: maxRestarts,
	}
}

func (inst *Instance) Id() string { return inst.id }
func (inst *Instance) TaskId() string { return inst.taskId }
func (inst *Instance) JobId() string { return inst.jobId }
func (inst *Instance) RunId() uuid.UUID { return inst.runId }
func (inst *Instance) Attempt() int { return inst.attempt }
func (inst *Instance) Spot() bool { return inst.spot }
func (inst *Instance) Profile() Profile { return inst.profile }
func (inst *Instance) Required() resources.Vector { return inst.required }
func (inst *Instance) ErrorRate() float64 { return inst.errorRate }
func (inst *Instance) Status() InstanceStatus { return inst.status }
func (inst *Instance) LastTransitionTime() time.Time { return inst.lastTransitionTime }
func (inst *Instance) StartTime() time.Time { return inst.startTime }
func (inst *Instance) Deadline() time.Time { return inst.deadline }
func (inst *Instance) EndTime() time.Time { return inst.endTime }
func (inst *Instance) CurrentUsage() resources.Vector { return inst.currentUsage }
func (inst *Instance) PeakUsage() resources.Vector { return inst.peakUsage }
func (inst *Instance) Metrics() PerformanceMetrics { return inst.metrics }
func (inst *Instance) ConsecutiveBreaches() int { return inst.consecutiveBreaches }
func (inst *Instance) Restarts() int { return inst.restarts }
func (inst *Instance) MaxRestarts() int { return inst.maxRestarts }
func (inst *Instance) PreemptionTime() time.Time { return inst.preemptionTime }
func (inst *Instance) CheckpointTime() time.Time { return inst.checkpointTime }
func (inst *Instance) CheckpointProgress() float64 { return inst.checkpointProgress }

// TimeInStatus is how long the instance has been in its current status at now.
func (inst *Instance) TimeInStatus(now time.Time) time.Duration {
	return now.Sub(inst.lastTransitionTime)
}

// Started returns true if the instance has ever been started.
func (inst *Instance) Started() bool {
	return !inst.startTime.IsZero()
}

// Progress returns the fraction of the instance's work done at now, in [0, 1].
func (inst *Instance) Progress(now time.Time) float64 {
	if inst.status == InstanceTerminated {
		return 1
	}
	if !inst.Started() || !inst.deadline.After(inst.startTime) {
		return inst.checkpointProgress
	}
	t := now
	if inst.status.IsTerminal() && inst.endTime.Before(t) {
		t = inst.endTime
	}
	fraction := float64(t.Sub(inst.startTime)) / float64(inst.deadline.Sub(inst.startTime))
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return inst.checkpointProgress + (1-inst.checkpointProgress)*fraction
}

// SetStatus moves the instance to status at time now. Moving out of a terminal status is an error. Reaching a
// terminal status records the end time and replaces current usage with the profile's final usage.
func (inst *Instance) SetStatus(status InstanceStatus, now time.Time) error {
	if inst.status.IsTerminal() {
		return errors.WithStack(&ErrTerminalStatus{
			Kind:   "instance",
			Id:     inst.id,
			Status: inst.status.String(),
			Target: status.String(),
		})
	}
	if status == inst.status {
		return nil
	}
	inst.status = status
	inst.lastTransitionTime = now
	if status != InstanceDegraded && status != InstanceUnhealthy {
		inst.consecutiveBreaches = 0
	}
	if status.IsTerminal() {
		inst.endTime = now
		inst.currentUsage = inst.finalUsage()
		inst.peakUsage = inst.peakUsage.Max(inst.currentUsage)
	}
	return nil
}

// finalUsage is the mean of the profile's usage pattern, or nothing for an instance that never started.
func (inst *Instance) finalUsage() resources.Vector {
	var usage resources.Vector
	if !inst.Started() {
		return usage
	}
	for _, d := range resources.AllDimensions {
		usage = usage.With(d, inst.required.Get(d).Mul(decimal.NewFromFloat(inst.profile.Pattern(d).Mean())))
	}
	return usage
}

// Start moves a pending instance to running with the given deadline.
func (inst *Instance) Start(now time.Time, deadline time.Time) error {
	if inst.status != InstancePending {
		return errors.Errorf("cannot start instance %s in status %s", inst.id, inst.status)
	}
	if !deadline.After(now) {
		return errors.Errorf("deadline %s of instance %s is not after start time %s", deadline, inst.id, now)
	}
	if err := inst.SetStatus(InstanceRunning, now); err != nil {
		return err
	}
	inst.startTime = now
	inst.deadline = deadline
	inst.endTime = deadline
	inst.metrics = InitialPerformanceMetrics
	return nil
}

// Preempt moves an active instance to preempting; it is interrupted once simulated time reaches preemptionTime.
// If checkpoint is set, the progress made so far is saved for the next run.
func (inst *Instance) Preempt(now time.Time, preemptionTime time.Time, checkpoint bool) error {
	if !inst.status.IsActive() || inst.status == InstancePreempting {
		return errors.Errorf("cannot preempt instance %s in status %s", inst.id, inst.status)
	}
	if checkpoint {
		inst.checkpointProgress = inst.Progress(now)
		inst.checkpointTime = now
	}
	if err := inst.SetStatus(InstancePreempting, now); err != nil {
		return err
	}
	inst.preemptionTime = preemptionTime
	return nil
}

// SetUsage records the current usage, capped at the required quantity, and raises the peak accordingly.
func (inst *Instance) SetUsage(usage resources.Vector) {
	inst.currentUsage = usage.ClampNonNegative().Min(inst.required)
	inst.peakUsage = inst.peakUsage.Max(inst.currentUsage)
}

func (inst *Instance) SetMetrics(metrics PerformanceMetrics) {
	inst.metrics = metrics
}

func (inst *Instance) SetConsecutiveBreaches(n int) {
	inst.consecutiveBreaches = n
}

// Restart counts a restart and reports whether the limit still allowed it.
func (inst *Instance) Restart() bool {
	if inst.restarts >= inst.maxRestarts {
		return false
	}
	inst.restarts++
	return true
}

// nextRun returns a fresh pending run of the same instance for a new attempt of its job.
func (inst *Instance) nextRun(attempt int) *Instance {
	return &Instance{
		id:                 inst.id,
		taskId:             inst.taskId,
		jobId:              inst.jobId,
		runId:              uuid.New(),
		attempt:            attempt,
		spot:               inst.spot,
		profile:            inst.profile,
		required:           inst.required,
		errorRate:          inst.errorRate,
		status:             InstancePending,
		metrics:            InitialPerformanceMetrics,
		maxRestarts:        inst.maxRestarts,
		checkpointProgress: inst.checkpointProgress,
	}
}
