package scheduler

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
	"github.com/armadaproject/clustersim/internal/common/logging"
	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/dag"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/lifecycle"
	"github.com/armadaproject/clustersim/internal/scheduler/preemption"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// runningJob is a job holding resources, together with exactly what was allocated to it.
type runningJob struct {
	job        *jobdb.Job
	allocation resources.Vector
}

// reservation is capacity set aside for a queued job that has preempted others, so that less urgent jobs cannot take
// what is reclaimed before it gets there.
type reservation struct {
	priority       int
	sequenceNumber int
	amount         resources.Vector
}

// Scheduler admits jobs into a resource pool in priority order, preempting less urgent jobs where necessary, and
// moves admitted jobs through their lifecycle. It is driven by a simulated clock: each tick is a call to
// ScheduleNextBatch followed by a call to UpdateJobStatus.
//
// Every job ever added is in exactly one of four sets: pending (queued or blocked on dependencies), running,
// completed, or interrupted (ended in any other way).
type Scheduler struct {
	config          configuration.SchedulingConfig
	pool            *resources.Pool
	graph           *dag.Graph
	jobDb           *jobdb.JobDb
	engine          *preemption.Engine
	instanceMachine *lifecycle.InstanceMachine
	jobStatusPolicy lifecycle.JobStatusPolicy
	rng             *rand.Rand
	// Jobs waiting to be admitted.
	queue jobQueue
	// Sequence number assigned to the next job queued.
	sequenceNumber int
	running        map[string]*runningJob
	// Jobs waiting for their dependencies to complete.
	blocked     map[string]bool
	completed   map[string]bool
	interrupted map[string]bool
	// Number of times each queued job has been deferred for exceeding the zone quota.
	deferrals map[string]int
	// Queued jobs that have preempted others, by job id. Cleared once the job is admitted or ends.
	reservations map[string]*reservation
	history   []StatusChange
	metrics   *Metrics
	logger    logrus.FieldLogger
	// Protects everything above. Held for the full duration of AddJob and of each tick.
	mu sync.Mutex
}

func NewScheduler(
	config configuration.SchedulingConfig,
	pool *resources.Pool,
	rng *rand.Rand,
	metrics *Metrics,
	logger logrus.FieldLogger,
) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}
	graph, err := dag.NewGraph()
	if err != nil {
		return nil, err
	}
	jobDb, err := jobdb.NewJobDb()
	if err != nil {
		return nil, err
	}
	jobStatusPolicy, err := lifecycle.NewJobStatusPolicy(config, rng)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		config:          config,
		pool:            pool,
		graph:           graph,
		jobDb:           jobDb,
		engine:          preemption.NewEngine(config.Preemption, logger),
		instanceMachine: lifecycle.NewInstanceMachine(config, rng),
		jobStatusPolicy: jobStatusPolicy,
		rng:             rng,
		running:         make(map[string]*runningJob),
		blocked:         make(map[string]bool),
		completed:       make(map[string]bool),
		interrupted:     make(map[string]bool),
		deferrals:       make(map[string]int),
		reservations:    make(map[string]*reservation),
		metrics:         metrics,
		logger:          logger,
	}, nil
}

// AddJob registers job. Jobs whose dependencies have all completed are queued; the others wait until they have.
// Jobs must be added after every job they depend on. If job has the id of a job added before, or its dependencies are
// invalid, an error is returned and the job is not registered.
func (s *Scheduler) AddJob(job *jobdb.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobDb.GetById(job.Id()) != nil {
		return errors.WithStack(&armadaerrors.ErrAlreadyExists{Type: "job", Value: job.Id()})
	}
	if err := s.jobDb.Insert(job); err != nil {
		return err
	}
	if err := s.graph.AddJob(job.Id(), job.Dependencies()); err != nil {
		// The graph is left untouched on error; undo the insert so the job is not registered anywhere.
		if deleteErr := s.jobDb.Delete(job.Id()); deleteErr != nil {
			logging.WithStacktrace(s.logger.WithField("jobId", job.Id()), deleteErr).Error("failed to remove rejected job")
		}
		return errors.WithMessagef(err, "failed to add job %s", job.Id())
	}
	now := job.SubmitTime()
	if failedDep := s.failedDependency(job.Id()); failedDep != "" && s.config.CancelDependentsOnFailure {
		s.cancel(job, failedDep, now)
		return nil
	}
	if s.graph.CanStart(job.Id(), s.isCompleted) {
		s.enqueue(job, now)
	} else {
		s.blocked[job.Id()] = true
		s.logger.WithField("jobId", job.Id()).Debugf("waiting for dependencies %v", job.Dependencies())
	}
	return nil
}

// ScheduleNextBatch tries to admit every queued job, in priority order, and returns the jobs admitted.
// Jobs that could not be admitted are queued again, keeping their relative order.
func (s *Scheduler) ScheduleNextBatch(now time.Time) []*jobdb.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	items := make([]*queuedJob, 0, s.queue.Len())
	for s.queue.Len() > 0 {
		items = append(items, heap.Pop(&s.queue).(*queuedJob))
	}
	admitted := make([]*jobdb.Job, 0)
	for _, item := range items {
		ok, err := s.tryAdmit(item, now)
		if err != nil {
			logging.WithStacktrace(s.logger.WithField("jobId", item.job.Id()), err).Error("failed to schedule job; requeueing")
		}
		if ok {
			admitted = append(admitted, item.job)
		} else if !item.job.Status().IsTerminal() {
			heap.Push(&s.queue, item)
		}
	}

	s.metrics.scheduleCycleTime.Observe(time.Since(start).Seconds())
	s.metrics.reportState(s.queue.Len(), len(s.running), s.pool.Available())
	return admitted
}

// tryAdmit admits a queued job if there is room for it, preempting other jobs if necessary.
// Capacity reserved for more urgent jobs that have preempted others is not available to it.
func (s *Scheduler) tryAdmit(item *queuedJob, now time.Time) (bool, error) {
	job := item.job
	required := job.Required()
	quota := s.pool.Total().ScaleFloat(s.config.ZoneQuota.Fraction)
	if d, exceeds := required.Exceeds(quota); exceeds {
		s.deferOverQuota(job, d, required, quota, now)
		return false, nil
	}

	reserved := s.reservedAhead(item)
	usable := s.pool.Available().Sub(reserved).ClampNonNegative()
	if _, exceeds := required.Exceeds(usable); exceeds {
		if s.config.Preemption.Enabled {
			// Capacity held by jobs already being preempted is on its way back; only preempt for what is missing beyond
			// it and beyond what is reserved for more urgent jobs.
			outstanding := required.Sub(s.pool.Available()).Sub(s.reclaiming()).Add(reserved).ClampNonNegative()
			if !outstanding.IsZero() {
				if err := s.preempt(item, outstanding, now); err != nil {
					return false, err
				}
			}
		}
		return false, nil
	}

	for _, inst := range job.Instances() {
		if inst.Status() != jobdb.InstancePending && !inst.Status().IsTerminal() {
			return false, errors.Errorf("instance %s of job %s is %s, expected it to be pending", inst.Id(), job.Id(), inst.Status())
		}
	}
	if !s.pool.Allocate(required) {
		return false, nil
	}
	for _, inst := range job.Instances() {
		if inst.Status().IsTerminal() {
			continue
		}
		from := inst.Status()
		if err := inst.Start(now, now.Add(s.duration(inst))); err != nil {
			// Only reachable if the checks above are wrong. Stop the instances started so far so they are not left
			// running without resources.
			s.teardown(job, now)
			s.pool.Release(required)
			return false, err
		}
		s.record(StatusChange{
			JobId:      job.Id(),
			InstanceId: inst.Id(),
			RunId:      inst.RunId(),
			Old:        from.String(),
			New:        inst.Status().String(),
			Time:       now,
		})
	}
	s.running[job.Id()] = &runningJob{job: job, allocation: required}
	delete(s.deferrals, job.Id())
	delete(s.reservations, job.Id())
	s.setJobStatus(job, jobdb.JobRunning, now)
	s.metrics.admittedJobs.Inc()
	s.logger.WithField("jobId", job.Id()).Infof("admitted with %s, attempt %d", required, job.Attempt())
	return true, nil
}

// preempt evicts running jobs to make room for a queued job, if that can free at least outstanding. If anything is
// evicted, what the job requires is reserved for it until it is admitted.
func (s *Scheduler) preempt(item *queuedJob, outstanding resources.Vector, now time.Time) error {
	job := item.job
	running := make([]*jobdb.Job, 0, len(s.running))
	for _, id := range s.sortedRunningIds() {
		running = append(running, s.running[id].job)
	}
	result := s.engine.SelectVictims(job.Priority(), outstanding, running, now)
	if result == nil {
		return nil
	}
	if len(result.Victims) > 0 {
		s.reservations[job.Id()] = &reservation{
			priority:       job.Priority(),
			sequenceNumber: item.sequenceNumber,
			amount:         job.Required(),
		}
	}
	for _, victim := range result.Victims {
		transitions, err := s.engine.Evict(victim, now)
		s.recordTransitions(transitions)
		s.metrics.evictedInstances.Add(float64(len(transitions)))
		if err != nil {
			return err
		}
		s.metrics.preemptedJobs.Inc()
		s.logger.WithField("jobId", victim.Id()).Infof("preempted for job %s", job.Id())
	}
	return nil
}

// reservedAhead is the capacity reserved for queued jobs more urgent than item.
func (s *Scheduler) reservedAhead(item *queuedJob) resources.Vector {
	var rv resources.Vector
	for id, r := range s.reservations {
		if id == item.job.Id() {
			continue
		}
		if r.priority < item.job.Priority() || (r.priority == item.job.Priority() && r.sequenceNumber < item.sequenceNumber) {
			rv = rv.Add(r.amount)
		}
	}
	return rv
}

// reclaiming is the capacity held by running jobs that are being preempted.
func (s *Scheduler) reclaiming() resources.Vector {
	var rv resources.Vector
	for _, r := range s.running {
		if r.job.IsPreempting() {
			rv = rv.Add(r.allocation)
		}
	}
	return rv
}

// deferOverQuota throttles a job asking for more than the zone quota. Under the reject policy, a job deferred too
// often is failed instead.
func (s *Scheduler) deferOverQuota(job *jobdb.Job, d resources.Dimension, required, quota resources.Vector, now time.Time) {
	if s.config.ZoneQuota.Policy == configuration.RejectPolicy && s.deferrals[job.Id()] >= s.config.ZoneQuota.MaxDeferrals {
		job.SetThrottleReason(fmt.Sprintf(
			"rejected after %d deferrals: requested %s %s exceeds zone quota %s",
			s.deferrals[job.Id()], required.Get(d), d, quota.Get(d),
		))
		delete(s.deferrals, job.Id())
		s.end(job, jobdb.JobFailed, now)
		return
	}
	s.deferrals[job.Id()]++
	s.metrics.quotaDeferrals.Inc()
	job.SetThrottleReason(fmt.Sprintf("requested %s %s exceeds zone quota %s", required.Get(d), d, quota.Get(d)))
	s.setJobStatus(job, jobdb.JobThrottled, now)
}

// duration is how long an instance runs for, based on how much it asks for.
func (s *Scheduler) duration(inst *jobdb.Instance) time.Duration {
	weights := s.config.Duration.Weights
	required := inst.Required()
	minutes := 0.0
	for _, d := range resources.AllDimensions {
		minutes += weights.Float64(d) * required.Float64(d)
	}
	jitter := s.config.Duration.MinJitter + s.rng.Float64()*(s.config.Duration.MaxJitter-s.config.Duration.MinJitter)
	rv := time.Duration(minutes * jitter * float64(time.Minute))
	if rv < s.config.Duration.Minimum {
		rv = s.config.Duration.Minimum
	}
	// Instances resuming from a checkpoint only have the rest of their work to do.
	if checkpoint := inst.CheckpointProgress(); checkpoint > 0 {
		rv = time.Duration(float64(rv) * (1 - checkpoint))
		if rv < time.Second {
			rv = time.Second
		}
	}
	return rv
}

// UpdateJobStatus advances every running job by one tick. Jobs that end are either retried or finalised, releasing
// their resources, and jobs waiting for a job that completed are queued if they can now start.
func (s *Scheduler) UpdateJobStatus(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.sortedRunningIds() {
		s.updateRunningJob(s.running[id], now)
	}
	s.metrics.reportState(s.queue.Len(), len(s.running), s.pool.Available())
}

func (s *Scheduler) updateRunningJob(r *runningJob, now time.Time) {
	job := r.job
	for _, inst := range job.Instances() {
		transitions, err := s.instanceMachine.Advance(inst, now)
		if err != nil {
			logging.
				WithStacktrace(s.logger.WithField("jobId", job.Id()).WithField("instanceId", inst.Id()), err).
				Error("failed to advance instance; ending it")
			transitions, err = lifecycle.TearDown(inst, now)
			if err != nil {
				logging.WithStacktrace(s.logger, err).Errorf("failed to end instance %s", inst.Id())
			}
		}
		s.recordTransitions(transitions)
	}
	s.updateTasks(job, now)

	next := s.jobStatusPolicy.Next(job, now)
	if !next.IsTerminal() {
		s.setJobStatus(job, next, now)
		return
	}
	if next != jobdb.JobCompleted && job.CanRetry() {
		s.retry(r, next, now)
		return
	}
	s.finalise(r, next, now)
}

// retry releases the resources of a job that failed or was interrupted and queues a new attempt of it.
func (s *Scheduler) retry(r *runningJob, outcome jobdb.JobStatus, now time.Time) {
	job := r.job
	s.teardown(job, now)
	s.updateTasks(job, now)
	s.pool.Release(r.allocation)
	delete(s.running, job.Id())

	old := job.Status()
	if err := job.Retry(now); err != nil {
		logging.WithStacktrace(s.logger.WithField("jobId", job.Id()), err).Error("failed to retry job")
		s.end(job, outcome, now)
		return
	}
	s.record(StatusChange{JobId: job.Id(), Old: old.String(), New: job.Status().String(), Time: now})
	s.metrics.retriedJobs.Inc()
	s.logger.WithField("jobId", job.Id()).Infof("attempt ended %s; retrying (%d of %d)", outcome, job.RetryCount(), job.MaxRetries())
	s.push(job)
}

// finalise releases the resources of a job that has ended and moves it into its final set.
func (s *Scheduler) finalise(r *runningJob, outcome jobdb.JobStatus, now time.Time) {
	job := r.job
	s.teardown(job, now)
	s.updateTasks(job, now)
	s.pool.Release(r.allocation)
	delete(s.running, job.Id())
	s.end(job, outcome, now)
}

// end moves a job that holds no resources to its final status and set.
func (s *Scheduler) end(job *jobdb.Job, outcome jobdb.JobStatus, now time.Time) {
	delete(s.reservations, job.Id())
	s.setJobStatus(job, outcome, now)
	s.metrics.reportJobOutcome(outcome)
	s.logger.WithField("jobId", job.Id()).Infof("job %s", outcome)
	if outcome == jobdb.JobCompleted {
		s.completed[job.Id()] = true
		s.enqueueSuccessors(job.Id(), now)
		return
	}
	s.interrupted[job.Id()] = true
	if s.config.CancelDependentsOnFailure {
		s.cancelDependents(job.Id(), now)
	}
}

// enqueueSuccessors queues every job waiting on id that can now start.
func (s *Scheduler) enqueueSuccessors(id string, now time.Time) {
	for _, successor := range s.graph.Successors(id) {
		if !s.blocked[successor] || !s.graph.CanStart(successor, s.isCompleted) {
			continue
		}
		delete(s.blocked, successor)
		if job := s.jobDb.GetById(successor); job != nil {
			s.enqueue(job, now)
		}
	}
}

// cancelDependents fails every job waiting, directly or not, on id.
func (s *Scheduler) cancelDependents(id string, now time.Time) {
	for _, successor := range s.graph.Successors(id) {
		if !s.blocked[successor] {
			continue
		}
		if job := s.jobDb.GetById(successor); job != nil {
			s.cancel(job, id, now)
		}
	}
}

// cancel fails a job that can never start because dependency ended without completing.
func (s *Scheduler) cancel(job *jobdb.Job, dependency string, now time.Time) {
	delete(s.blocked, job.Id())
	job.SetThrottleReason(fmt.Sprintf("dependency %s did not complete", dependency))
	s.end(job, jobdb.JobFailed, now)
}

// failedDependency returns a dependency of id that ended without completing, if there is one.
func (s *Scheduler) failedDependency(id string) string {
	for _, dep := range s.graph.Predecessors(id) {
		if s.interrupted[dep] {
			return dep
		}
	}
	return ""
}

// teardown ends every instance of job that has not yet ended. Running and preempting instances are interrupted.
func (s *Scheduler) teardown(job *jobdb.Job, now time.Time) {
	for _, inst := range job.Instances() {
		transitions, err := lifecycle.TearDown(inst, now)
		if err != nil {
			logging.WithStacktrace(s.logger, err).Errorf("failed to end instance %s", inst.Id())
		}
		s.recordTransitions(transitions)
	}
}

func (s *Scheduler) updateTasks(job *jobdb.Job, now time.Time) {
	for _, task := range job.Tasks() {
		if err := lifecycle.UpdateTask(task, now); err != nil {
			logging.WithStacktrace(s.logger, err).Errorf("failed to update task %s", task.Id())
		}
	}
}

// enqueue marks job as queued and pushes it onto the queue.
func (s *Scheduler) enqueue(job *jobdb.Job, now time.Time) {
	s.setJobStatus(job, jobdb.JobQueued, now)
	s.push(job)
}

func (s *Scheduler) push(job *jobdb.Job) {
	heap.Push(&s.queue, &queuedJob{job: job, sequenceNumber: s.sequenceNumber})
	s.sequenceNumber++
}

func (s *Scheduler) setJobStatus(job *jobdb.Job, status jobdb.JobStatus, now time.Time) {
	old := job.Status()
	if old == status {
		return
	}
	if err := job.SetStatus(status, now); err != nil {
		logging.WithStacktrace(s.logger, err).Errorf("failed to set status of job %s", job.Id())
		return
	}
	s.record(StatusChange{JobId: job.Id(), Old: old.String(), New: status.String(), Time: now})
}

func (s *Scheduler) recordTransitions(transitions []lifecycle.Transition) {
	for _, t := range transitions {
		s.record(statusChangeFromTransition(t))
	}
}

func (s *Scheduler) record(change StatusChange) {
	s.history = append(s.history, change)
	s.logger.
		WithField("jobId", change.JobId).
		WithField("instanceId", change.InstanceId).
		Debugf("%s -> %s", change.Old, change.New)
}

func (s *Scheduler) isCompleted(id string) bool {
	return s.completed[id]
}

func (s *Scheduler) sortedRunningIds() []string {
	ids := maps.Keys(s.running)
	slices.Sort(ids)
	return ids
}

// VerifyDependencies checks the integrity of the dependency graph.
func (s *Scheduler) VerifyDependencies() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Verify()
}

// StatusSummary returns the number of jobs in each status. Every status is present.
func (s *Scheduler) StatusSummary() map[jobdb.JobStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rv := make(map[jobdb.JobStatus]int, len(jobdb.AllJobStatuses))
	for _, status := range jobdb.AllJobStatuses {
		rv[status] = 0
	}
	for _, job := range s.jobDb.GetAll() {
		rv[job.Status()]++
	}
	return rv
}

// History returns a copy of the status change log, oldest first.
func (s *Scheduler) History() []StatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// HistorySince returns the status changes recorded after the first n, oldest first.
func (s *Scheduler) HistorySince(n int) []StatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.history) {
		return nil
	}
	return slices.Clone(s.history[n:])
}

// Job returns the job with the given id, or nil if there is none.
func (s *Scheduler) Job(id string) *jobdb.Job {
	return s.jobDb.GetById(id)
}

// Jobs returns all jobs ordered by id.
func (s *Scheduler) Jobs() []*jobdb.Job {
	return s.jobDb.GetAll()
}

// PendingJobIds returns the ids of queued and blocked jobs, sorted.
func (s *Scheduler) PendingJobIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := maps.Keys(s.blocked)
	for _, item := range s.queue {
		ids = append(ids, item.job.Id())
	}
	slices.Sort(ids)
	return ids
}

func (s *Scheduler) RunningJobIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRunningIds()
}

func (s *Scheduler) CompletedJobIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.completed)
}

// InterruptedJobIds returns the ids of jobs that ended without completing, sorted.
func (s *Scheduler) InterruptedJobIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.interrupted)
}

// Done returns true once no job is pending or running.
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len() == 0 && len(s.blocked) == 0 && len(s.running) == 0
}

func (s *Scheduler) Pool() *resources.Pool {
	return s.pool
}

func sortedKeys(m map[string]bool) []string {
	rv := maps.Keys(m)
	slices.Sort(rv)
	return rv
}
