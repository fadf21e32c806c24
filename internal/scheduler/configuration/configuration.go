package configuration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// JobStatusPolicy selects how the status of a running job is derived.
type JobStatusPolicy string

const (
	// Job status follows from the share of its instances in each status.
	InstanceRatioPolicy JobStatusPolicy = "instanceRatio"
	// Job status follows an independent weighted table and completes once its progress reaches one.
	ProbabilisticPolicy JobStatusPolicy = "probabilistic"
)

// ZoneQuotaPolicy selects what happens to jobs asking for more than the zone quota.
type ZoneQuotaPolicy string

const (
	// Over-quota jobs are throttled and requeued indefinitely.
	RequeuePolicy ZoneQuotaPolicy = "requeue"
	// Over-quota jobs are throttled and requeued until they have been deferred MaxDeferrals times, and then failed.
	RejectPolicy ZoneQuotaPolicy = "reject"
)

type SchedulingConfig struct {
	// Exactly one job status policy applies per scheduler.
	JobStatusPolicy JobStatusPolicy `validate:"oneof=instanceRatio probabilistic"`
	ZoneQuota       ZoneQuotaConfig
	Preemption      PreemptionConfig
	Instance        InstanceConfig
	Health          HealthConfig
	Duration        DurationConfig
	// Retries granted to jobs whose workload does not say otherwise.
	DefaultMaxRetries int `validate:"gte=0"`
	// If true, blocked jobs that can never start because a job they depend on ended failed or interrupted are failed.
	CancelDependentsOnFailure bool
}

type ZoneQuotaConfig struct {
	// Jobs asking for more than this fraction of the total capacity in any dimension are deferred.
	Fraction float64         `validate:"gt=0,lte=1"`
	Policy   ZoneQuotaPolicy `validate:"oneof=requeue reject"`
	// Only used by the reject policy.
	MaxDeferrals int `validate:"gte=0"`
}

type PreemptionConfig struct {
	// If false, jobs that do not fit are requeued without looking for victims.
	Enabled bool
	// Non-spot jobs are only preempted by jobs more urgent by more than this many priority levels.
	PriorityMargin int `validate:"gte=0"`
	// Jobs further along than this are never preempted.
	MaxVictimProgress float64 `validate:"gte=0,lte=1"`
	// Time between a job being selected for preemption and its instances being interrupted.
	GracePeriod time.Duration `validate:"gte=0"`
	// Weights of the victim cost function. Cheaper victims are evicted first.
	ProgressWeight float64 `validate:"gte=0"`
	UsageWeight    float64 `validate:"gte=0"`
	PriorityWeight float64 `validate:"gte=0"`
	TypeWeight     float64 `validate:"gte=0"`
	// Instance type weights used by TypeWeight.
	SpotTypeWeight     float64 `validate:"gte=0"`
	StandardTypeWeight float64 `validate:"gte=0"`
}

type InstanceConfig struct {
	// Probability that an instance reaching its end time terminates rather than fails.
	CompletionSuccessProbability float64 `validate:"gte=0,lte=1"`
	// Non-spot instances with an error rate above this are interrupted.
	InterruptionThreshold float64 `validate:"gte=0,lte=1"`
	// Per-tick probability that a running spot instance is interrupted.
	SpotInterruptionProbability float64 `validate:"gte=0,lte=1"`
	// Restarts allowed before an unhealthy instance that would restart fails instead.
	MaxRestarts int `validate:"gte=0"`
	// Usage is jittered by up to this fraction of the required quantity.
	UsageJitter float64 `validate:"gte=0,lte=1"`
	// Maximum time an instance may spend in a status, keyed by status name. Statuses without an entry have no ceiling.
	MaxTimeInState map[string]time.Duration
}

type HealthConfig struct {
	// Consecutive breaching health checks after which an instance becomes unhealthy.
	UnhealthyAfterBreaches int `validate:"gte=1"`
	// Largest change of cpu and memory utilisation per tick.
	UtilisationStep float64 `validate:"gte=0,lte=1"`
	// Largest change of network latency per tick.
	LatencyStep time.Duration `validate:"gte=0"`
	MaxLatency  time.Duration `validate:"gt=0"`
}

type DurationConfig struct {
	// Lower bound of the simulated run time of an instance.
	Minimum time.Duration `validate:"gt=0"`
	// Minutes of run time per unit of each resource.
	Weights resources.Vector
	// The weighted duration is scaled by a factor drawn uniformly from [MinJitter, MaxJitter].
	MinJitter float64 `validate:"gt=0"`
	MaxJitter float64 `validate:"gtefield=MinJitter"`
}

// MaxTimeIn returns the ceiling for status and whether there is one.
func (c InstanceConfig) MaxTimeIn(status jobdb.InstanceStatus) (time.Duration, bool) {
	d, ok := c.MaxTimeInState[status.String()]
	return d, ok && d > 0
}

func DefaultSchedulingConfig() SchedulingConfig {
	return SchedulingConfig{
		JobStatusPolicy: InstanceRatioPolicy,
		ZoneQuota: ZoneQuotaConfig{
			Fraction:     0.8,
			Policy:       RequeuePolicy,
			MaxDeferrals: 10,
		},
		Preemption: PreemptionConfig{
			Enabled:            true,
			PriorityMargin:     2,
			MaxVictimProgress:  0.8,
			GracePeriod:        2 * time.Minute,
			ProgressWeight:     50,
			UsageWeight:        0.3,
			PriorityWeight:     20,
			TypeWeight:         10,
			SpotTypeWeight:     1,
			StandardTypeWeight: 2,
		},
		Instance: InstanceConfig{
			CompletionSuccessProbability: 0.9,
			InterruptionThreshold:        0.95,
			SpotInterruptionProbability:  0.02,
			MaxRestarts:                  3,
			UsageJitter:                  0.05,
			MaxTimeInState: map[string]time.Duration{
				jobdb.InstancePending.String():      time.Hour,
				jobdb.InstanceProvisioning.String(): 10 * time.Minute,
				jobdb.InstanceStarting.String():     10 * time.Minute,
				jobdb.InstanceDegraded.String():     30 * time.Minute,
				jobdb.InstanceUnhealthy.String():    30 * time.Minute,
				jobdb.InstanceStopping.String():     5 * time.Minute,
			},
		},
		Health: HealthConfig{
			UnhealthyAfterBreaches: 3,
			UtilisationStep:        0.05,
			LatencyStep:            10 * time.Millisecond,
			MaxLatency:             time.Second,
		},
		Duration: DurationConfig{
			Minimum: 15 * time.Minute,
			Weights: resources.NewVector(map[resources.Dimension]float64{
				resources.Cpu:    1,
				resources.Memory: 0.001,
				resources.Gpu:    5,
				resources.Disk:   0.01,
			}),
			MinJitter: 0.8,
			MaxJitter: 1.2,
		},
		DefaultMaxRetries:         3,
		CancelDependentsOnFailure: true,
	}
}

func (c SchedulingConfig) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(SchedulingConfigValidation, SchedulingConfig{})
	return validate.Struct(c)
}

// SchedulingConfigValidation checks what struct tags cannot express.
func SchedulingConfigValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(SchedulingConfig)

	for name, d := range c.Instance.MaxTimeInState {
		status, err := jobdb.ParseInstanceStatus(name)
		if err != nil {
			sl.ReportError(c.Instance.MaxTimeInState, "MaxTimeInState", "MaxTimeInState", "unknown_status", name)
			continue
		}
		if status.IsTerminal() {
			sl.ReportError(c.Instance.MaxTimeInState, "MaxTimeInState", "MaxTimeInState", "terminal_status", name)
		}
		if d < 0 {
			sl.ReportError(c.Instance.MaxTimeInState, "MaxTimeInState", "MaxTimeInState", "negative_duration", name)
		}
	}
	if !c.Duration.Weights.IsNonNegative() {
		sl.ReportError(c.Duration.Weights, "Weights", "Weights", "non_negative", "")
	}
}
