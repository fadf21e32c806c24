package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/clustersim/internal/common/armadacontext"
	"github.com/armadaproject/clustersim/internal/common/util"
	"github.com/armadaproject/clustersim/internal/scheduler"
	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator/model"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator/sink"
)

const (
	DefaultTickInterval     = time.Minute
	DefaultMaxSimulatedTime = 30 * 24 * time.Hour
)

var epochStart = time.Unix(0, 0).UTC()

// Simulator runs a workload against a scheduler managing the capacity of one cluster, advancing simulated time in
// fixed ticks.
type Simulator struct {
	ClusterSpec      *ClusterSpec
	WorkloadSpec     *WorkloadSpec
	schedulingConfig configuration.SchedulingConfig
	// Identifies the simulation in logs and sink output.
	id        string
	scheduler *scheduler.Scheduler
	// Per-simulation registry, so that simulations running concurrently don't share metrics.
	registry *prometheus.Registry
	// Jobs yet to be submitted, ordered by submit time.
	unsubmitted []*jobdb.Job
	// Current simulated time.
	time             time.Time
	tickInterval     time.Duration
	maxSimulatedTime time.Duration
	// Number of scheduler status changes already sent to the sink.
	historyOffset int
	// Used to generate random numbers from a chosen seed.
	rand             *rand.Rand
	sink             sink.Sink
	metricsCollector *MetricsCollector
}

// SimulationResult summarises a finished simulation.
type SimulationResult struct {
	Id               string
	ClusterName      string
	WorkloadName     string
	SimulatedTime    time.Duration
	JobsByStatus     map[jobdb.JobStatus]int
	Metrics          Metrics
	MetricsByJobType map[string]Metrics
	// What the scheduler got wrong, if anything.
	Verification scheduler.ExecutionReport
}

func (r *SimulationResult) String() string {
	return fmt.Sprintf(
		"{Id: %s, Cluster: %s, Workload: %s, SimulatedTime: %s, Metrics: %s, Verification: %s}",
		r.Id, r.ClusterName, r.WorkloadName, r.SimulatedTime, r.Metrics, r.Verification,
	)
}

// NewSimulator creates a simulator. Non-positive tickInterval and maxSimulatedTime select the defaults.
func NewSimulator(
	clusterSpec *ClusterSpec,
	workloadSpec *WorkloadSpec,
	schedulingConfig configuration.SchedulingConfig,
	tickInterval time.Duration,
	maxSimulatedTime time.Duration,
	sink sink.Sink,
	logger logrus.FieldLogger,
) (*Simulator, error) {
	initialiseWorkloadSpec(workloadSpec)
	if err := validateClusterSpec(clusterSpec); err != nil {
		return nil, err
	}
	if err := validateWorkloadSpec(workloadSpec); err != nil {
		return nil, errors.WithMessagef(err, "invalid workload %s", workloadSpec.Name)
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if maxSimulatedTime <= 0 {
		maxSimulatedTime = DefaultMaxSimulatedTime
	}
	randomSeed := workloadSpec.RandomSeed
	if randomSeed == 0 {
		// Seed the RNG using the local time if no explicit random seed is provided.
		randomSeed = time.Now().Unix()
	}
	id := util.NewULID()
	rng := util.NewThreadsafeRand(randomSeed)
	registry := prometheus.NewRegistry()
	metrics, err := scheduler.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.NewScheduler(
		schedulingConfig,
		resources.NewPool(clusterSpec.Resources),
		rng,
		metrics,
		logger.WithField("simulationId", id),
	)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		ClusterSpec:      clusterSpec,
		WorkloadSpec:     workloadSpec,
		schedulingConfig: schedulingConfig,
		id:               id,
		scheduler:        sched,
		registry:         registry,
		time:             epochStart,
		tickInterval:     tickInterval,
		maxSimulatedTime: maxSimulatedTime,
		rand:             rng,
		sink:             sink,
		metricsCollector: NewMetricsCollector(epochStart),
	}
	if err := s.bootstrapWorkload(); err != nil {
		return nil, err
	}
	return s, nil
}

// bootstrapWorkload creates every job of the workload.
func (s *Simulator) bootstrapWorkload() error {
	jobIdsByTemplateId := make(map[string][]string)
	for _, template := range s.WorkloadSpec.JobTemplates {
		var dependencies []string
		for _, dep := range template.Dependencies {
			dependencies = append(dependencies, jobIdsByTemplateId[dep]...)
		}
		maxRetries := s.schedulingConfig.DefaultMaxRetries
		if template.MaxRetries != nil {
			maxRetries = *template.MaxRetries
		}
		for i := 0; i < template.Number; i++ {
			jobId := fmt.Sprintf("%s-%d", template.Id, i)
			tasks := make([]*jobdb.Task, len(template.Tasks))
			for j, taskTemplate := range template.Tasks {
				instances := make([]*jobdb.Instance, taskTemplate.NumInstances)
				for k := range instances {
					instances[k] = jobdb.NewInstance(
						fmt.Sprintf("%s-t%d-i%d", jobId, j, k),
						taskTemplate.Requirements,
						s.rand.Float64()*template.MaxErrorRate,
						s.schedulingConfig.Instance.MaxRestarts,
					)
				}
				tasks[j] = jobdb.NewTask(fmt.Sprintf("%s-t%d", jobId, j), taskTemplate.TaskType, instances)
			}
			job, err := jobdb.NewJob(jobId, template.JobType, template.Priority, template.Spot, dependencies, tasks, maxRetries)
			if err != nil {
				return errors.WithMessagef(err, "failed to create job from template %s", template.Id)
			}
			job.SetSubmitTime(s.time.Add(template.SubmitOffset))
			s.unsubmitted = append(s.unsubmitted, job)
			jobIdsByTemplateId[template.Id] = append(jobIdsByTemplateId[template.Id], jobId)
		}
	}
	// Stable, so jobs are still added after the jobs they depend on.
	slices.SortStableFunc(s.unsubmitted, func(a, b *jobdb.Job) bool {
		return a.SubmitTime().Before(b.SubmitTime())
	})
	return nil
}

func (s *Simulator) Id() string {
	return s.id
}

func (s *Simulator) Now() time.Time {
	return s.time
}

func (s *Simulator) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

func (s *Simulator) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Simulator) MetricsCollector() *MetricsCollector {
	return s.metricsCollector
}

// Run runs the simulation until all jobs have finished or the maximum simulated time is reached.
func (s *Simulator) Run(ctx *armadacontext.Context) error {
	startTime := time.Now()
	ctx = armadacontext.WithLogField(ctx, "simulationId", s.id)
	terminationTime := s.time.Add(s.maxSimulatedTime)
	ctx.Log.Infof(
		"Simulating workload %s on cluster %s with %d jobs until %s",
		s.WorkloadSpec.Name, s.ClusterSpec.Name, len(s.unsubmitted), terminationTime,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.tick(); err != nil {
			return err
		}
		if len(s.unsubmitted) == 0 && s.scheduler.Done() {
			ctx.Log.Infof("All jobs finished at %s. Simulation took %s", s.time, time.Since(startTime))
			return nil
		}
		s.time = s.time.Add(s.tickInterval)
		if s.time.After(terminationTime) {
			ctx.Log.Infof("Current simulated time (%s) exceeds the maximum (%s). Terminating", s.time, terminationTime)
			return nil
		}
	}
}

// tick submits jobs that are due, runs one scheduling pass and one status update, and forwards what changed.
func (s *Simulator) tick() error {
	for len(s.unsubmitted) > 0 && !s.unsubmitted[0].SubmitTime().After(s.time) {
		job := s.unsubmitted[0]
		s.unsubmitted = s.unsubmitted[1:]
		if err := s.scheduler.AddJob(job); err != nil {
			return err
		}
		s.metricsCollector.addSubmission(job)
	}

	admitted := s.scheduler.ScheduleNextBatch(s.time)
	s.metricsCollector.addAdmissions(admitted)
	s.scheduler.UpdateJobStatus(s.time)

	changes := s.scheduler.HistorySince(s.historyOffset)
	s.historyOffset += len(changes)
	s.metricsCollector.addStatusChanges(changes)
	if len(changes) > 0 {
		if err := s.sink.OnNewStateTransitions(model.StateTransitions{
			SimulationId: s.id,
			Time:         s.time,
			Changes:      changes,
		}); err != nil {
			return err
		}
	}
	pool := s.scheduler.Pool()
	return s.sink.OnTickEnd(model.TickSummary{
		SimulationId: s.id,
		Time:         s.time,
		JobsByStatus: s.scheduler.StatusSummary(),
		Available:    pool.Available(),
		Allocated:    pool.Allocated(),
	})
}

// Result summarises the simulation so far.
func (s *Simulator) Result() *SimulationResult {
	return &SimulationResult{
		Id:               s.id,
		ClusterName:      s.ClusterSpec.Name,
		WorkloadName:     s.WorkloadSpec.Name,
		SimulatedTime:    s.time.Sub(epochStart),
		JobsByStatus:     s.scheduler.StatusSummary(),
		Metrics:          s.metricsCollector.Total,
		MetricsByJobType: s.metricsCollector.MetricsByJobType,
		Verification:     s.scheduler.VerifyExecution(),
	}
}
