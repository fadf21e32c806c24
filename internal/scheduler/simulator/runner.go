package simulator

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"github.com/renstrom/shortuuid"
	"github.com/spf13/viper"

	"github.com/armadaproject/clustersim/internal/common/armadacontext"
	commonconfig "github.com/armadaproject/clustersim/internal/common/config"
	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator/sink"
)

// Options controls a batch of simulations.
type Options struct {
	// If non-zero, overrides the random seed of every workload.
	RandomSeed       int64
	TickInterval     time.Duration
	MaxSimulatedTime time.Duration
}

// Simulate runs every combination of the cluster specs, workload specs and scheduling configs matching the given
// patterns concurrently, sending their output to s. An empty schedulingConfigsPattern runs the default config.
func Simulate(
	ctx *armadacontext.Context,
	clusterSpecsPattern, workloadSpecsPattern, schedulingConfigsPattern string,
	opts Options,
	s sink.Sink,
) ([]*SimulationResult, error) {
	clusterSpecs, err := ClusterSpecsFromPattern(clusterSpecsPattern)
	if err != nil {
		return nil, err
	}
	workloadSpecs, err := WorkloadsFromPattern(workloadSpecsPattern)
	if err != nil {
		return nil, err
	}
	schedulingConfigs := []configuration.SchedulingConfig{configuration.DefaultSchedulingConfig()}
	if schedulingConfigsPattern != "" {
		schedulingConfigs, err = SchedulingConfigsFromPattern(schedulingConfigsPattern)
		if err != nil {
			return nil, err
		}
	}
	if len(clusterSpecs) == 0 || len(workloadSpecs) == 0 || len(schedulingConfigs) == 0 {
		return nil, errors.Errorf(
			"nothing to simulate: %d cluster specs, %d workload specs and %d scheduling configs",
			len(clusterSpecs), len(workloadSpecs), len(schedulingConfigs),
		)
	}

	var mu sync.Mutex
	results := make([]*SimulationResult, 0, len(clusterSpecs)*len(workloadSpecs)*len(schedulingConfigs))
	g, ctx := armadacontext.ErrGroup(ctx)
	for _, clusterSpec := range clusterSpecs {
		for _, workloadSpec := range workloadSpecs {
			for _, schedulingConfig := range schedulingConfigs {
				// Simulations mutate their workload spec, so each gets its own.
				workloadSpec := copyWorkloadSpec(workloadSpec)
				if opts.RandomSeed != 0 {
					workloadSpec.RandomSeed = opts.RandomSeed
				}
				simulator, err := NewSimulator(
					clusterSpec,
					workloadSpec,
					schedulingConfig,
					opts.TickInterval,
					opts.MaxSimulatedTime,
					s,
					ctx.Log,
				)
				if err != nil {
					return nil, err
				}
				g.Go(func() error {
					if err := simulator.Run(ctx); err != nil {
						return err
					}
					result := simulator.Result()
					ctx.Log.Infof("Simulation finished: %s", result)
					mu.Lock()
					results = append(results, result)
					mu.Unlock()
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func SchedulingConfigsFromPattern(pattern string) ([]configuration.SchedulingConfig, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return SchedulingConfigsFromFilePaths(filePaths)
}

func SchedulingConfigsFromFilePaths(filePaths []string) ([]configuration.SchedulingConfig, error) {
	rv := make([]configuration.SchedulingConfig, len(filePaths))
	for i, filePath := range filePaths {
		config, err := SchedulingConfigFromFilePath(filePath)
		if err != nil {
			return nil, err
		}
		rv[i] = config
	}
	return rv, nil
}

// SchedulingConfigFromFilePath reads a scheduling config. Settings missing from the file keep their default value.
func SchedulingConfigFromFilePath(filePath string) (configuration.SchedulingConfig, error) {
	config := configuration.DefaultSchedulingConfig()
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		err = errors.WithMessagef(err, "failed to read in SchedulingConfig %s", filePath)
		return config, errors.WithStack(err)
	}
	if err := v.Unmarshal(&config, commonconfig.CustomHooks...); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal SchedulingConfig %s", filePath)
		return config, errors.WithStack(err)
	}
	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return config, errors.WithMessagef(err, "invalid SchedulingConfig %s", filePath)
	}
	return config, nil
}

func ClusterSpecsFromPattern(pattern string) ([]*ClusterSpec, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ClusterSpecsFromFilePaths(filePaths)
}

func WorkloadsFromPattern(pattern string) ([]*WorkloadSpec, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return WorkloadSpecsFromFilePaths(filePaths)
}

func ClusterSpecsFromFilePaths(filePaths []string) ([]*ClusterSpec, error) {
	rv := make([]*ClusterSpec, len(filePaths))
	for i, filePath := range filePaths {
		clusterSpec, err := ClusterSpecFromFilePath(filePath)
		if err != nil {
			return nil, err
		}
		rv[i] = clusterSpec
	}
	return rv, nil
}

func WorkloadSpecsFromFilePaths(filePaths []string) ([]*WorkloadSpec, error) {
	rv := make([]*WorkloadSpec, len(filePaths))
	for i, filePath := range filePaths {
		workloadSpec, err := WorkloadSpecFromFilePath(filePath)
		if err != nil {
			return nil, err
		}
		rv[i] = workloadSpec
	}
	return rv, nil
}

func ClusterSpecFromFilePath(filePath string) (*ClusterSpec, error) {
	rv := &ClusterSpec{}
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		err = errors.WithMessagef(err, "failed to read in ClusterSpec %s", filePath)
		return nil, errors.WithStack(err)
	}
	if err := v.Unmarshal(rv, commonconfig.CustomHooks...); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal ClusterSpec %s", filePath)
		return nil, errors.WithStack(err)
	}

	// If no name is provided, set it to be the filename.
	if rv.Name == "" {
		rv.Name = nameFromFilePath(filePath)
	}
	return rv, nil
}

func WorkloadSpecFromFilePath(filePath string) (*WorkloadSpec, error) {
	rv := &WorkloadSpec{}
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		err = errors.WithMessagef(err, "failed to read in WorkloadSpec %s", filePath)
		return nil, errors.WithStack(err)
	}
	if err := v.Unmarshal(rv, commonconfig.CustomHooks...); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal WorkloadSpec %s", filePath)
		return nil, errors.WithStack(err)
	}

	// If no name is provided, set it to be the filename.
	if rv.Name == "" {
		rv.Name = nameFromFilePath(filePath)
	}

	// Generate random ids for any job templates without an explicitly set id.
	for _, jobTemplate := range rv.JobTemplates {
		if jobTemplate.Id == "" {
			jobTemplate.Id = shortuuid.New()
		}
	}
	initialiseWorkloadSpec(rv)
	return rv, nil
}

func nameFromFilePath(filePath string) string {
	fileName := filepath.Base(filePath)
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

func copyWorkloadSpec(workloadSpec *WorkloadSpec) *WorkloadSpec {
	rv := *workloadSpec
	rv.JobTemplates = make([]*JobTemplate, len(workloadSpec.JobTemplates))
	for i, template := range workloadSpec.JobTemplates {
		t := *template
		t.Tasks = make([]*TaskTemplate, len(template.Tasks))
		for j, task := range template.Tasks {
			taskCopy := *task
			t.Tasks[j] = &taskCopy
		}
		rv.JobTemplates[i] = &t
	}
	return &rv
}
