package testfixtures

// This file contains test fixtures to be used throughout the tests for this package.
import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

const (
	TestJobType  = "test_job"
	TestTaskType = "data_processing"
)

var (
	BaseTime, _ = time.Parse("2006-01-02T15:04:05.000Z", "2022-03-01T15:04:05.000Z")
	// Used for job ids.
	jobCounter int64
)

// JobOptions describes a test job. Every instance of the job asks for InstanceResources.
type JobOptions struct {
	Id                string
	Priority          int
	Spot              bool
	Dependencies      []string
	NumTasks          int
	InstancesPerTask  int
	InstanceResources resources.Vector
	ErrorRate         float64
	MaxRetries        int
	MaxRestarts       int
}

// TestSchedulingConfig is a config under which simulations are deterministic for a given seed and easy to reason
// about: instances never degrade, never fail on their own, and run for exactly TestInstanceDuration.
func TestSchedulingConfig() configuration.SchedulingConfig {
	config := configuration.DefaultSchedulingConfig()
	config.ZoneQuota.Fraction = 0.9
	config.Instance.CompletionSuccessProbability = 1
	config.Instance.SpotInterruptionProbability = 0
	config.Instance.UsageJitter = 0
	config.Health.UtilisationStep = 0
	config.Health.LatencyStep = 0
	config.Duration = configuration.DurationConfig{
		Minimum:   TestInstanceDuration,
		MinJitter: 1,
		MaxJitter: 1,
	}
	return config
}

const TestInstanceDuration = 100 * time.Minute

func WithZoneQuotaConfig(zoneQuota configuration.ZoneQuotaConfig, config configuration.SchedulingConfig) configuration.SchedulingConfig {
	config.ZoneQuota = zoneQuota
	return config
}

func WithCancelDependentsConfig(cancel bool, config configuration.SchedulingConfig) configuration.SchedulingConfig {
	config.CancelDependentsOnFailure = cancel
	return config
}

// WithHealthConfig turns the health walk back on.
func WithHealthConfig(health configuration.HealthConfig, config configuration.SchedulingConfig) configuration.SchedulingConfig {
	config.Health = health
	return config
}

func Cpu(q float64) resources.Vector {
	return resources.NewVector(map[resources.Dimension]float64{resources.Cpu: q})
}

func CpuMem(cpu, memory float64) resources.Vector {
	return resources.NewVector(map[resources.Dimension]float64{resources.Cpu: cpu, resources.Memory: memory})
}

// NewJob creates a job as described by opts, with one task and instance unless stated otherwise.
func NewJob(opts JobOptions) *jobdb.Job {
	if opts.Id == "" {
		opts.Id = fmt.Sprintf("job-%d", atomic.AddInt64(&jobCounter, 1))
	}
	if opts.NumTasks == 0 {
		opts.NumTasks = 1
	}
	if opts.InstancesPerTask == 0 {
		opts.InstancesPerTask = 1
	}
	tasks := make([]*jobdb.Task, opts.NumTasks)
	for i := range tasks {
		instances := make([]*jobdb.Instance, opts.InstancesPerTask)
		for j := range instances {
			instances[j] = jobdb.NewInstance(
				fmt.Sprintf("%s-t%d-i%d", opts.Id, i, j),
				opts.InstanceResources,
				opts.ErrorRate,
				opts.MaxRestarts,
			)
		}
		tasks[i] = jobdb.NewTask(fmt.Sprintf("%s-t%d", opts.Id, i), TestTaskType, instances)
	}
	job, err := jobdb.NewJob(opts.Id, TestJobType, opts.Priority, opts.Spot, opts.Dependencies, tasks, opts.MaxRetries)
	if err != nil {
		panic(err)
	}
	job.SetSubmitTime(BaseTime)
	return job
}

// NCpuJobs returns n independent jobs with the given priority, each with one instance asking for cpu.
func NCpuJobs(n int, priority int, cpu float64) []*jobdb.Job {
	rv := make([]*jobdb.Job, n)
	for i := range rv {
		rv[i] = NewJob(JobOptions{Priority: priority, InstanceResources: Cpu(cpu)})
	}
	return rv
}

// RandomJobs returns n jobs with random sizes and priorities. Each job depends on up to two jobs created before it,
// so the jobs may be added in order.
func RandomJobs(rng *rand.Rand, n int, maxCpu float64) []*jobdb.Job {
	rv := make([]*jobdb.Job, n)
	for i := range rv {
		var deps []string
		for k := 0; k < 2 && i > 0; k++ {
			if rng.Float64() < 0.3 {
				dep := rv[rng.Intn(i)].Id()
				if len(deps) == 0 || deps[0] != dep {
					deps = append(deps, dep)
				}
			}
		}
		rv[i] = NewJob(JobOptions{
			Id:                fmt.Sprintf("random-%d", i),
			Priority:          rng.Intn(10),
			Spot:              rng.Float64() < 0.5,
			Dependencies:      deps,
			NumTasks:          1 + rng.Intn(2),
			InstancesPerTask:  1 + rng.Intn(2),
			InstanceResources: Cpu(1 + float64(rng.Intn(int(maxCpu)))),
			ErrorRate:         rng.Float64() * 0.2,
			MaxRetries:        rng.Intn(3),
			MaxRestarts:       1,
		})
	}
	return rv
}
