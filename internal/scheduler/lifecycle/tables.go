package lifecycle

import (
	"math/rand"

	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// Outcome is one entry of a weighted transition table.
type Outcome[T any] struct {
	Value  T
	Weight float64
}

// Choose draws one of outcomes with probability proportional to its weight.
// Outcomes with non-positive weight are never chosen unless all weights are non-positive.
func Choose[T any](rng *rand.Rand, outcomes []Outcome[T]) T {
	total := 0.0
	for _, o := range outcomes {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total <= 0 {
		return outcomes[len(outcomes)-1].Value
	}
	r := rng.Float64() * total
	for _, o := range outcomes {
		if o.Weight <= 0 {
			continue
		}
		if r < o.Weight {
			return o.Value
		}
		r -= o.Weight
	}
	return outcomes[len(outcomes)-1].Value
}

type unhealthyAction int

const (
	stayUnhealthy unhealthyAction = iota
	restartInstance
	stopInstance
	failInstance
)

// What happens to an unhealthy instance on each tick.
var unhealthyOutcomes = []Outcome[unhealthyAction]{
	{Value: stayUnhealthy, Weight: 0.5},
	{Value: restartInstance, Weight: 0.3},
	{Value: stopInstance, Weight: 0.1},
	{Value: failInstance, Weight: 0.1},
}

// Where an instance is sent once it exceeds the maximum time allowed in its status.
var stuckEscapes = map[jobdb.InstanceStatus]jobdb.InstanceStatus{
	jobdb.InstancePending:      jobdb.InstanceFailed,
	jobdb.InstanceProvisioning: jobdb.InstanceFailed,
	jobdb.InstanceStarting:     jobdb.InstanceFailed,
	jobdb.InstanceStopping:     jobdb.InstanceFailed,
	jobdb.InstanceDegraded:     jobdb.InstanceStopping,
	jobdb.InstanceUnhealthy:    jobdb.InstanceStopping,
}

// Every instance status change the simulation allows, by source status. Terminal statuses have no way out.
// Preemption reaches preempting from any status in which the instance holds capacity.
var instanceTransitions = map[jobdb.InstanceStatus][]jobdb.InstanceStatus{
	jobdb.InstancePending: {
		jobdb.InstanceProvisioning, jobdb.InstanceRunning, jobdb.InstanceFailed,
	},
	jobdb.InstanceProvisioning: {
		jobdb.InstanceStarting, jobdb.InstancePreempting, jobdb.InstanceFailed,
	},
	jobdb.InstanceStarting: {
		jobdb.InstanceRunning, jobdb.InstancePreempting, jobdb.InstanceFailed,
	},
	jobdb.InstanceRunning: {
		jobdb.InstanceDegraded, jobdb.InstanceUnhealthy, jobdb.InstancePreempting, jobdb.InstanceStopping,
		jobdb.InstanceTerminated, jobdb.InstanceFailed, jobdb.InstanceInterrupted,
	},
	jobdb.InstanceDegraded: {
		jobdb.InstanceRunning, jobdb.InstanceUnhealthy, jobdb.InstancePreempting, jobdb.InstanceStopping,
		jobdb.InstanceTerminated, jobdb.InstanceFailed,
	},
	jobdb.InstanceUnhealthy: {
		jobdb.InstanceRunning, jobdb.InstanceDegraded, jobdb.InstanceStarting, jobdb.InstancePreempting,
		jobdb.InstanceStopping, jobdb.InstanceFailed,
	},
	jobdb.InstancePreempting: {
		jobdb.InstanceInterrupted,
	},
	jobdb.InstanceStopping: {
		jobdb.InstanceTerminated, jobdb.InstanceFailed,
	},
}

// ValidInstanceTransition returns true if an instance may move from one status to the other.
func ValidInstanceTransition(from, to jobdb.InstanceStatus) bool {
	for _, s := range instanceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Where an instance that has not yet ended goes when its job is torn down. Only running and preempting instances are
// interrupted; instances already stopping finish stopping and any other instance fails.
var teardownStatuses = map[jobdb.InstanceStatus]jobdb.InstanceStatus{
	jobdb.InstancePending:      jobdb.InstanceFailed,
	jobdb.InstanceProvisioning: jobdb.InstanceFailed,
	jobdb.InstanceStarting:     jobdb.InstanceFailed,
	jobdb.InstanceRunning:      jobdb.InstanceInterrupted,
	jobdb.InstanceDegraded:     jobdb.InstanceFailed,
	jobdb.InstanceUnhealthy:    jobdb.InstanceFailed,
	jobdb.InstancePreempting:   jobdb.InstanceInterrupted,
	jobdb.InstanceStopping:     jobdb.InstanceTerminated,
}

// Job-level transitions of the probabilistic policy.
var jobTransitions = map[jobdb.JobStatus][]Outcome[jobdb.JobStatus]{
	jobdb.JobRunning: {
		{Value: jobdb.JobRunning, Weight: 0.97},
		{Value: jobdb.JobPaused, Weight: 0.02},
		{Value: jobdb.JobThrottled, Weight: 0.01},
	},
	jobdb.JobPaused: {
		{Value: jobdb.JobPaused, Weight: 0.7},
		{Value: jobdb.JobResuming, Weight: 0.3},
	},
	jobdb.JobResuming: {
		{Value: jobdb.JobRunning, Weight: 1},
	},
	jobdb.JobThrottled: {
		{Value: jobdb.JobThrottled, Weight: 0.5},
		{Value: jobdb.JobRunning, Weight: 0.5},
	},
}
