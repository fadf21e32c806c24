package scheduler

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

const (
	NAMESPACE = "clustersim"
	SUBSYSTEM = "scheduler"
)

// Metrics are the prometheus metrics maintained by a Scheduler.
type Metrics struct {
	// Jobs moved into the running set.
	admittedJobs prometheus.Counter
	// Jobs selected for preemption.
	preemptedJobs prometheus.Counter
	// Instances moved to preempting.
	evictedInstances prometheus.Counter
	// Jobs requeued after failing or being interrupted.
	retriedJobs prometheus.Counter
	// Times a job was deferred for exceeding the zone quota.
	quotaDeferrals prometheus.Counter
	// Final status of every job that ended.
	jobOutcomes *prometheus.CounterVec
	queuedJobs  prometheus.Gauge
	runningJobs prometheus.Gauge
	// Available capacity per resource dimension.
	availableResources *prometheus.GaugeVec
	// Wall-clock duration of ScheduleNextBatch.
	scheduleCycleTime prometheus.Histogram
}

// NewMetrics creates the scheduler metrics and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		admittedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "admitted_jobs_total",
			Help:      "Number of jobs admitted.",
		}),
		preemptedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "preempted_jobs_total",
			Help:      "Number of jobs selected for preemption.",
		}),
		evictedInstances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "evicted_instances_total",
			Help:      "Number of instances moved to preempting.",
		}),
		retriedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "retried_jobs_total",
			Help:      "Number of job retries.",
		}),
		quotaDeferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "zone_quota_deferrals_total",
			Help:      "Number of times a job was deferred for exceeding the zone quota.",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "job_outcomes_total",
			Help:      "Number of jobs that ended, by final status.",
		}, []string{"status"}),
		queuedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "queued_jobs",
			Help:      "Number of jobs in the pending queue.",
		}),
		runningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "running_jobs",
			Help:      "Number of jobs holding resources.",
		}),
		availableResources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "available_resources",
			Help:      "Unallocated capacity.",
		}, []string{"resource"}),
		scheduleCycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Subsystem: SUBSYSTEM,
			Name:      "schedule_cycle_seconds",
			Help:      "Wall-clock time of a scheduling pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.admittedJobs,
		m.preemptedJobs,
		m.evictedInstances,
		m.retriedJobs,
		m.quotaDeferrals,
		m.jobOutcomes,
		m.queuedJobs,
		m.runningJobs,
		m.availableResources,
		m.scheduleCycleTime,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return m, nil
}

func (m *Metrics) reportJobOutcome(status jobdb.JobStatus) {
	m.jobOutcomes.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) reportState(queued, running int, available resources.Vector) {
	m.queuedJobs.Set(float64(queued))
	m.runningJobs.Set(float64(running))
	for _, d := range resources.AllDimensions {
		m.availableResources.WithLabelValues(d.String()).Set(available.Float64(d))
	}
}
