package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd(t *testing.T) {
	tests := map[string]struct {
		args        []string
		expectError bool
	}{
		"sample config": {
			args: []string{
				"--clusters", "../../../config/clustersim/clusters/*.yaml",
				"--workloads", "../../../config/clustersim/workloads/*.yaml",
				"--config", "../../../config/clustersim/config.yaml",
				"--seed", "7",
				"--maxSimulatedTime", "2h",
			},
		},
		"default scheduling config": {
			args: []string{
				"--clusters", "../../../config/clustersim/clusters/*.yaml",
				"--workloads", "../../../config/clustersim/workloads/*.yaml",
				"--maxSimulatedTime", "30m",
			},
		},
		"missing clusters": {
			args:        []string{"--workloads", "../../../config/clustersim/workloads/*.yaml"},
			expectError: true,
		},
		"no matching workloads": {
			args: []string{
				"--clusters", "../../../config/clustersim/clusters/*.yaml",
				"--workloads", "../../../config/clustersim/workloads/*.json",
			},
			expectError: true,
		},
		"invalid tick interval": {
			args: []string{
				"--clusters", "../../../config/clustersim/clusters/*.yaml",
				"--workloads", "../../../config/clustersim/workloads/*.yaml",
				"--tickInterval", "often",
			},
			expectError: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := RootCmd()
			cmd.SetArgs(tc.args)
			cmd.SilenceUsage = true
			err := cmd.Execute()
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
