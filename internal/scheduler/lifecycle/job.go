package lifecycle

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// JobStatusPolicy decides the status of a running job after its instances have been advanced.
// The returned status may be terminal; deciding between retrying and finalising is up to the caller.
type JobStatusPolicy interface {
	Name() configuration.JobStatusPolicy
	Next(job *jobdb.Job, now time.Time) jobdb.JobStatus
}

// NewJobStatusPolicy returns the policy selected by config.
func NewJobStatusPolicy(config configuration.SchedulingConfig, rng *rand.Rand) (JobStatusPolicy, error) {
	switch config.JobStatusPolicy {
	case configuration.InstanceRatioPolicy:
		return &InstanceRatioPolicy{}, nil
	case configuration.ProbabilisticPolicy:
		return &ProbabilisticPolicy{
			successProbability: config.Instance.CompletionSuccessProbability,
			rng:                rng,
		}, nil
	default:
		return nil, errors.Errorf("unknown job status policy %q", config.JobStatusPolicy)
	}
}

// InstanceRatioPolicy derives the job status from the share of instances in each status.
type InstanceRatioPolicy struct{}

func (p *InstanceRatioPolicy) Name() configuration.JobStatusPolicy {
	return configuration.InstanceRatioPolicy
}

func (p *InstanceRatioPolicy) Next(job *jobdb.Job, _ time.Time) jobdb.JobStatus {
	// Hold the status until preempted instances have been interrupted.
	if job.IsPreempting() {
		return job.Status()
	}
	instances := job.Instances()
	n := len(instances)
	failed, terminated, healthy, terminal := 0, 0, 0, 0
	for _, inst := range instances {
		switch inst.Status() {
		case jobdb.InstanceFailed:
			failed++
		case jobdb.InstanceTerminated:
			terminated++
			healthy++
		case jobdb.InstanceUnhealthy, jobdb.InstanceInterrupted, jobdb.InstancePreempting:
		default:
			// Degraded instances are still doing work; only UnhealthyAfterBreaches breaches in a row make them unhealthy.
			healthy++
		}
		if inst.Status().IsTerminal() {
			terminal++
		}
	}
	switch {
	case 2*failed >= n:
		return jobdb.JobFailed
	case 10*terminated >= 8*n:
		return jobdb.JobCompleted
	case 10*healthy < 3*n:
		return jobdb.JobInterrupted
	case terminal == n:
		return jobdb.JobInterrupted
	default:
		return jobdb.JobRunning
	}
}

// ProbabilisticPolicy moves running jobs through a weighted table of statuses until their work is done, and then
// completes them with a fixed probability.
type ProbabilisticPolicy struct {
	successProbability float64
	rng                *rand.Rand
}

func (p *ProbabilisticPolicy) Name() configuration.JobStatusPolicy {
	return configuration.ProbabilisticPolicy
}

func (p *ProbabilisticPolicy) Next(job *jobdb.Job, now time.Time) jobdb.JobStatus {
	if job.IsPreempting() {
		return job.Status()
	}
	instances := job.Instances()
	interrupted, terminal := 0, 0
	for _, inst := range instances {
		if inst.Status() == jobdb.InstanceInterrupted {
			interrupted++
		}
		if inst.Status().IsTerminal() {
			terminal++
		}
	}
	if interrupted == len(instances) {
		return jobdb.JobInterrupted
	}
	if terminal == len(instances) || job.Progress(now) >= 1 {
		if p.rng.Float64() < p.successProbability {
			return jobdb.JobCompleted
		}
		return jobdb.JobFailed
	}
	outcomes, ok := jobTransitions[job.Status()]
	if !ok {
		return jobdb.JobRunning
	}
	return Choose(p.rng, outcomes)
}
