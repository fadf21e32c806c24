package jobdb

import (
	"time"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// UsagePattern is the fraction of the required quantity an instance uses, rising linearly from Min at start to Max
// at its deadline.
type UsagePattern struct {
	Min float64
	Max float64
}

func (p UsagePattern) At(progress float64) float64 {
	return p.Min + (p.Max-p.Min)*progress
}

// Mean is the usage reported once an instance has stopped.
func (p UsagePattern) Mean() float64 {
	return (p.Min + p.Max) / 2
}

// HealthThresholds bound the simulated performance metrics of a healthy instance.
type HealthThresholds struct {
	CpuUtilisation    float64
	MemoryUtilisation float64
	NetworkLatency    time.Duration
}

// Profile describes how instances of one task type consume resources and when they count as unhealthy.
type Profile struct {
	TaskType string
	Cpu      UsagePattern
	Memory   UsagePattern
	Gpu      UsagePattern
	Disk     UsagePattern
	Health   HealthThresholds
}

func (p Profile) Pattern(d resources.Dimension) UsagePattern {
	switch d {
	case resources.Cpu:
		return p.Cpu
	case resources.Memory:
		return p.Memory
	case resources.Gpu:
		return p.Gpu
	default:
		return p.Disk
	}
}

const DefaultTaskType = "default"

var defaultHealth = HealthThresholds{
	CpuUtilisation:    0.95,
	MemoryUtilisation: 0.95,
	NetworkLatency:    250 * time.Millisecond,
}

var profiles = map[string]Profile{
	"data_ingestion": {
		Cpu: UsagePattern{0.4, 0.8}, Memory: UsagePattern{0.3, 0.6}, Disk: UsagePattern{0.7, 0.9},
		Health: defaultHealth,
	},
	"data_processing": {
		Cpu: UsagePattern{0.6, 0.9}, Memory: UsagePattern{0.5, 0.8}, Disk: UsagePattern{0.4, 0.7},
		Health: defaultHealth,
	},
	"model_training": {
		Cpu: UsagePattern{0.7, 1.0}, Memory: UsagePattern{0.6, 0.9}, Gpu: UsagePattern{0.8, 1.0}, Disk: UsagePattern{0.3, 0.6},
		Health: HealthThresholds{CpuUtilisation: 0.99, MemoryUtilisation: 0.97, NetworkLatency: 500 * time.Millisecond},
	},
	"model_inference": {
		Cpu: UsagePattern{0.5, 0.8}, Memory: UsagePattern{0.4, 0.7}, Gpu: UsagePattern{0.6, 0.9}, Disk: UsagePattern{0.2, 0.4},
		Health: HealthThresholds{CpuUtilisation: 0.9, MemoryUtilisation: 0.9, NetworkLatency: 100 * time.Millisecond},
	},
	"etl_pipeline": {
		Cpu: UsagePattern{0.5, 0.9}, Memory: UsagePattern{0.4, 0.8}, Disk: UsagePattern{0.6, 0.9},
		Health: defaultHealth,
	},
	"data_analytics": {
		Cpu: UsagePattern{0.6, 0.9}, Memory: UsagePattern{0.7, 0.9}, Disk: UsagePattern{0.3, 0.6},
		Health: defaultHealth,
	},
	"batch_processing": {
		Cpu: UsagePattern{0.7, 1.0}, Memory: UsagePattern{0.6, 0.9}, Disk: UsagePattern{0.5, 0.8},
		Health: HealthThresholds{CpuUtilisation: 0.99, MemoryUtilisation: 0.95, NetworkLatency: 500 * time.Millisecond},
	},
	"streaming_pipeline": {
		Cpu: UsagePattern{0.4, 0.7}, Memory: UsagePattern{0.5, 0.8}, Disk: UsagePattern{0.6, 0.9},
		Health: HealthThresholds{CpuUtilisation: 0.9, MemoryUtilisation: 0.9, NetworkLatency: 150 * time.Millisecond},
	},
	DefaultTaskType: {
		Cpu: UsagePattern{0.5, 0.8}, Memory: UsagePattern{0.5, 0.8}, Gpu: UsagePattern{0.5, 0.8}, Disk: UsagePattern{0.5, 0.8},
		Health: defaultHealth,
	},
}

// ProfileFor returns the profile of taskType, falling back to the default profile for unknown types.
func ProfileFor(taskType string) Profile {
	p, ok := profiles[taskType]
	if !ok {
		p = profiles[DefaultTaskType]
	}
	p.TaskType = taskType
	return p
}

// KnownTaskType returns true if taskType has a dedicated profile.
func KnownTaskType(taskType string) bool {
	_, ok := profiles[taskType]
	return ok
}
