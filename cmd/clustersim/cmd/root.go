package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/armadaproject/clustersim/internal/common/armadacontext"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator"
	"github.com/armadaproject/clustersim/internal/scheduler/simulator/sink"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clustersim",
		Short: "Simulate scheduling workloads on a shared cluster.",
		RunE:  runSimulations,
	}
	cmd.Flags().String("clusters", "", "Glob pattern specifying cluster specs to simulate.")
	cmd.Flags().String("workloads", "", "Glob pattern specifying workloads to simulate.")
	cmd.Flags().String("config", "", "Glob pattern specifying scheduling configs to simulate. The default config is used if empty.")
	cmd.Flags().Int64("seed", 0, "If non-zero, overrides the random seed of every workload.")
	cmd.Flags().Duration("tickInterval", simulator.DefaultTickInterval, "Simulated time between scheduling passes.")
	cmd.Flags().Duration("maxSimulatedTime", simulator.DefaultMaxSimulatedTime, "Stop simulating after this much simulated time.")
	_ = cmd.MarkFlagRequired("clusters")
	_ = cmd.MarkFlagRequired("workloads")
	return cmd
}

func runSimulations(cmd *cobra.Command, args []string) error {
	// Get command-line arguments.
	clusterPattern, err := cmd.Flags().GetString("clusters")
	if err != nil {
		return err
	}
	workloadPattern, err := cmd.Flags().GetString("workloads")
	if err != nil {
		return err
	}
	configPattern, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	seed, err := cmd.Flags().GetInt64("seed")
	if err != nil {
		return err
	}
	tickInterval, err := cmd.Flags().GetDuration("tickInterval")
	if err != nil {
		return err
	}
	maxSimulatedTime, err := cmd.Flags().GetDuration("maxSimulatedTime")
	if err != nil {
		return err
	}

	ctx := armadacontext.Background()
	ctx.Log.Info("Cluster scheduler simulator")
	ctx.Log.Infof("ClusterSpecs: %s", clusterPattern)
	ctx.Log.Infof("WorkloadSpecs: %s", workloadPattern)
	ctx.Log.Infof("SchedulingConfigs: %s", configPattern)

	logSink := sink.NewLoggingSink(ctx.Log)
	defer logSink.Close()
	start := time.Now()
	results, err := simulator.Simulate(
		ctx,
		clusterPattern,
		workloadPattern,
		configPattern,
		simulator.Options{
			RandomSeed:       seed,
			TickInterval:     tickInterval,
			MaxSimulatedTime: maxSimulatedTime,
		},
		logSink,
	)
	if err != nil {
		return err
	}

	// Log overall statistics.
	for _, result := range results {
		ctx.Log.Infof("Simulation result")
		ctx.Log.Infof("ClusterSpec: %s", result.ClusterName)
		ctx.Log.Infof("WorkloadSpec: %s", result.WorkloadName)
		ctx.Log.Infof("Simulated time: %s", result.SimulatedTime)
		ctx.Log.Infof("Jobs by status: %v", result.JobsByStatus)
		ctx.Log.Info(result.Metrics.String())
		if result.Verification.Ok() {
			ctx.Log.Infof("Verification: %s", result.Verification)
		} else {
			ctx.Log.
				WithField("dependencyViolations", result.Verification.DependencyViolations).
				WithField("invalidTransitions", result.Verification.InvalidTransitions).
				WithField("resourceViolations", result.Verification.ResourceViolations).
				Warnf("Verification failed: %s", result.Verification)
		}
	}
	ctx.Log.Infof("Ran %d simulations in %s", len(results), time.Since(start))
	return nil
}
