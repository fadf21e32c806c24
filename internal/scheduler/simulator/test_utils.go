package simulator

import (
	"time"

	"github.com/armadaproject/clustersim/internal/common/armadacontext"
	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator/sink"
)

// SimulationRun runs a single simulation to completion, discarding its output.
func SimulationRun(
	ctx *armadacontext.Context,
	clusterSpec *ClusterSpec,
	workloadSpec *WorkloadSpec,
	schedulingConfig configuration.SchedulingConfig,
	maxSimulatedTime time.Duration,
) (*SimulationResult, *Simulator, error) {
	s, err := NewSimulator(clusterSpec, workloadSpec, schedulingConfig, DefaultTickInterval, maxSimulatedTime, sink.NullSink{}, ctx.Log)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Run(ctx); err != nil {
		return nil, s, err
	}
	return s.Result(), s, nil
}

func CpuCluster(name string, cpu float64) *ClusterSpec {
	return &ClusterSpec{
		Name:      name,
		Resources: resources.NewVector(map[resources.Dimension]float64{resources.Cpu: cpu}),
	}
}

// JobTemplateCpu returns a template of number jobs, each with a single instance asking for cpu.
func JobTemplateCpu(number int, id string, priority int, cpu float64) *JobTemplate {
	return &JobTemplate{
		Id:       id,
		Number:   number,
		JobType:  "test",
		Priority: priority,
		Tasks: []*TaskTemplate{
			{
				TaskType:     "data_processing",
				NumInstances: 1,
				Requirements: resources.NewVector(map[resources.Dimension]float64{resources.Cpu: cpu}),
			},
		},
	}
}

func WithDependenciesJobTemplate(jobTemplate *JobTemplate, dependencies ...string) *JobTemplate {
	jobTemplate.Dependencies = append(jobTemplate.Dependencies, dependencies...)
	return jobTemplate
}

func WithSubmitOffsetJobTemplate(jobTemplate *JobTemplate, offset time.Duration) *JobTemplate {
	jobTemplate.SubmitOffset = offset
	return jobTemplate
}

func WithMaxRetriesJobTemplate(jobTemplate *JobTemplate, maxRetries int) *JobTemplate {
	jobTemplate.MaxRetries = &maxRetries
	return jobTemplate
}
