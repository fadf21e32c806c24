package lifecycle

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// InstanceMachine advances instances through their lifecycle, at most one status per call.
type InstanceMachine struct {
	instanceConfig configuration.InstanceConfig
	healthConfig   configuration.HealthConfig
	rng            *rand.Rand
}

func NewInstanceMachine(config configuration.SchedulingConfig, rng *rand.Rand) *InstanceMachine {
	return &InstanceMachine{
		instanceConfig: config.Instance,
		healthConfig:   config.Health,
		rng:            rng,
	}
}

// Advance moves inst along at time now. Terminal instances are never changed.
// A running instance without an end time is an error; callers are expected to interrupt it.
func (m *InstanceMachine) Advance(inst *jobdb.Instance, now time.Time) ([]Transition, error) {
	status := inst.Status()
	if status.IsTerminal() {
		return nil, nil
	}
	if ceiling, ok := m.instanceConfig.MaxTimeIn(status); ok && inst.TimeInStatus(now) > ceiling {
		if escape, ok := stuckEscapes[status]; ok {
			return SetInstanceStatus(inst, escape, now)
		}
	}

	switch status {
	case jobdb.InstancePreempting:
		if !now.Before(inst.PreemptionTime()) {
			return SetInstanceStatus(inst, jobdb.InstanceInterrupted, now)
		}
	case jobdb.InstanceProvisioning:
		return SetInstanceStatus(inst, jobdb.InstanceStarting, now)
	case jobdb.InstanceStarting:
		return SetInstanceStatus(inst, jobdb.InstanceRunning, now)
	case jobdb.InstanceRunning, jobdb.InstanceDegraded:
		return m.advanceRunning(inst, now)
	case jobdb.InstanceUnhealthy:
		return m.advanceUnhealthy(inst, now)
	case jobdb.InstanceStopping:
		return SetInstanceStatus(inst, jobdb.InstanceTerminated, now)
	}
	return nil, nil
}

func (m *InstanceMachine) advanceRunning(inst *jobdb.Instance, now time.Time) ([]Transition, error) {
	if inst.Deadline().IsZero() {
		return nil, errors.Errorf("instance %s of job %s is %s but has no end time", inst.Id(), inst.JobId(), inst.Status())
	}
	m.updateUsage(inst, now)
	m.walkMetrics(inst)

	if !now.Before(inst.Deadline()) {
		if m.rng.Float64() < m.instanceConfig.CompletionSuccessProbability {
			return SetInstanceStatus(inst, jobdb.InstanceTerminated, now)
		}
		return SetInstanceStatus(inst, jobdb.InstanceFailed, now)
	}

	// Only running instances can be interrupted; a degraded one fails instead.
	interrupted := jobdb.InstanceInterrupted
	if inst.Status() == jobdb.InstanceDegraded {
		interrupted = jobdb.InstanceFailed
	}
	if inst.Spot() {
		if m.rng.Float64() < m.instanceConfig.SpotInterruptionProbability {
			return SetInstanceStatus(inst, interrupted, now)
		}
	} else if inst.ErrorRate() > m.instanceConfig.InterruptionThreshold {
		return SetInstanceStatus(inst, interrupted, now)
	}

	if breachesThresholds(inst.Metrics(), inst.Profile().Health) {
		breaches := inst.ConsecutiveBreaches() + 1
		inst.SetConsecutiveBreaches(breaches)
		if breaches >= m.healthConfig.UnhealthyAfterBreaches {
			return SetInstanceStatus(inst, jobdb.InstanceUnhealthy, now)
		}
		return SetInstanceStatus(inst, jobdb.InstanceDegraded, now)
	}
	inst.SetConsecutiveBreaches(0)
	return SetInstanceStatus(inst, jobdb.InstanceRunning, now)
}

func (m *InstanceMachine) advanceUnhealthy(inst *jobdb.Instance, now time.Time) ([]Transition, error) {
	switch Choose(m.rng, unhealthyOutcomes) {
	case restartInstance:
		if !inst.Restart() {
			return SetInstanceStatus(inst, jobdb.InstanceFailed, now)
		}
		inst.SetMetrics(jobdb.InitialPerformanceMetrics)
		return SetInstanceStatus(inst, jobdb.InstanceStarting, now)
	case stopInstance:
		return SetInstanceStatus(inst, jobdb.InstanceStopping, now)
	case failInstance:
		return SetInstanceStatus(inst, jobdb.InstanceFailed, now)
	}
	return nil, nil
}

// updateUsage sets the usage of inst to its profile's usage pattern at the current progress plus some jitter.
func (m *InstanceMachine) updateUsage(inst *jobdb.Instance, now time.Time) {
	progress := inst.Progress(now)
	profile := inst.Profile()
	required := inst.Required()
	var usage resources.Vector
	for _, d := range resources.AllDimensions {
		jitter := (2*m.rng.Float64() - 1) * m.instanceConfig.UsageJitter
		fraction := clamp(profile.Pattern(d).At(progress)+jitter, 0, 1)
		usage = usage.With(d, required.Get(d).Mul(decimal.NewFromFloat(fraction)))
	}
	inst.SetUsage(usage)
}

// walkMetrics moves each performance metric by a bounded random step.
func (m *InstanceMachine) walkMetrics(inst *jobdb.Instance) {
	metrics := inst.Metrics()
	step := m.healthConfig.UtilisationStep
	metrics.CpuUtilisation = clamp(metrics.CpuUtilisation+(2*m.rng.Float64()-1)*step, 0, 1)
	metrics.MemoryUtilisation = clamp(metrics.MemoryUtilisation+(2*m.rng.Float64()-1)*step, 0, 1)
	latency := metrics.NetworkLatency + time.Duration((2*m.rng.Float64()-1)*float64(m.healthConfig.LatencyStep))
	if latency < 0 {
		latency = 0
	} else if latency > m.healthConfig.MaxLatency {
		latency = m.healthConfig.MaxLatency
	}
	metrics.NetworkLatency = latency
	inst.SetMetrics(metrics)
}

func breachesThresholds(metrics jobdb.PerformanceMetrics, thresholds jobdb.HealthThresholds) bool {
	return metrics.CpuUtilisation > thresholds.CpuUtilisation ||
		metrics.MemoryUtilisation > thresholds.MemoryUtilisation ||
		metrics.NetworkLatency > thresholds.NetworkLatency
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
