package preemption

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/lifecycle"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// Engine selects running jobs to evict so that a more urgent job can be admitted.
type Engine struct {
	config configuration.PreemptionConfig
	logger logrus.FieldLogger
}

// Result is the outcome of a successful victim selection.
type Result struct {
	// Victims in the order they should be evicted.
	Victims []*jobdb.Job
	// Sum of the requirements of all victims.
	Reclaimed resources.Vector
}

type candidate struct {
	job      *jobdb.Job
	progress float64
	cost     float64
}

func NewEngine(config configuration.PreemptionConfig, logger logrus.FieldLogger) *Engine {
	return &Engine{
		config: config,
		logger: logger,
	}
}

// SelectVictims returns the cheapest set of running jobs whose eviction frees at least outstanding, for a job of the
// given priority. If evicting every candidate would not free enough, nothing is selected and nil is returned.
func (e *Engine) SelectVictims(priority int, outstanding resources.Vector, running []*jobdb.Job, now time.Time) *Result {
	if outstanding.IsZero() {
		return &Result{}
	}
	candidates := make([]candidate, 0, len(running))
	var reclaimable resources.Vector
	for _, job := range running {
		progress := job.Progress(now)
		if !e.isCandidate(job, priority, progress) {
			continue
		}
		candidates = append(candidates, candidate{
			job:      job,
			progress: progress,
			cost:     e.cost(job, progress),
		})
		reclaimable = reclaimable.Add(job.Required())
	}
	if !reclaimable.Dominates(outstanding) {
		e.logger.Debugf(
			"preempting all %d candidates would reclaim %s but %s is needed; not preempting",
			len(candidates), reclaimable, outstanding,
		)
		return nil
	}

	slices.SortStableFunc(candidates, func(a, b candidate) bool {
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		return a.job.Id() < b.job.Id()
	})
	rv := &Result{}
	for _, c := range candidates {
		if rv.Reclaimed.Dominates(outstanding) {
			break
		}
		rv.Victims = append(rv.Victims, c.job)
		rv.Reclaimed = rv.Reclaimed.Add(c.job.Required())
	}
	return rv
}

// isCandidate returns true if job may be preempted by a job of the given priority.
// Jobs already on their way out, jobs that are not less urgent, and jobs close to completion are never candidates.
func (e *Engine) isCandidate(job *jobdb.Job, priority int, progress float64) bool {
	if job.Status().IsTerminal() || job.IsPreempting() {
		return false
	}
	if job.Priority() <= priority {
		return false
	}
	if progress > e.config.MaxVictimProgress {
		return false
	}
	return job.Spot() || job.Priority()-priority > e.config.PriorityMargin
}

// cost is lower for jobs that have made little progress, use few resources, are less urgent and run on spot
// capacity.
func (e *Engine) cost(job *jobdb.Job, progress float64) float64 {
	typeWeight := e.config.StandardTypeWeight
	if job.Spot() {
		typeWeight = e.config.SpotTypeWeight
	}
	return e.config.ProgressWeight*progress +
		e.config.UsageWeight*job.CurrentUsage().Sum().InexactFloat64() +
		e.config.PriorityWeight/float64(job.Priority()+1) +
		e.config.TypeWeight*typeWeight
}

// Evict moves every running instance of job to preempting; each is interrupted once the grace period has passed.
// Instances of spot jobs are checkpointed first.
func (e *Engine) Evict(job *jobdb.Job, now time.Time) ([]lifecycle.Transition, error) {
	var transitions []lifecycle.Transition
	preemptionTime := now.Add(e.config.GracePeriod)
	for _, inst := range job.Instances() {
		if !isRunning(inst.Status()) {
			continue
		}
		from := inst.Status()
		if err := inst.Preempt(now, preemptionTime, job.Spot()); err != nil {
			return transitions, errors.WithMessagef(err, "failed to evict job %s", job.Id())
		}
		transitions = append(transitions, lifecycle.Transition{
			JobId:      job.Id(),
			InstanceId: inst.Id(),
			RunId:      inst.RunId(),
			From:       from,
			To:         jobdb.InstancePreempting,
			Time:       now,
		})
	}
	e.logger.WithField("jobId", job.Id()).Infof(
		"preempting %d instances, interrupting at %s", len(transitions), preemptionTime.Format(time.RFC3339),
	)
	return transitions, nil
}

func isRunning(status jobdb.InstanceStatus) bool {
	switch status {
	case jobdb.InstanceProvisioning, jobdb.InstanceStarting, jobdb.InstanceRunning,
		jobdb.InstanceDegraded, jobdb.InstanceUnhealthy:
		return true
	default:
		return false
	}
}
