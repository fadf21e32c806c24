package scheduler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/clustersim/internal/scheduler/configuration"
	"github.com/armadaproject/clustersim/internal/scheduler/testfixtures"
)

func jobChange(id, from, to string, minute int) StatusChange {
	return StatusChange{JobId: id, Old: from, New: to, Time: minutes(minute)}
}

func instanceChange(id string, run uuid.UUID, from, to string, minute int) StatusChange {
	return StatusChange{JobId: id, InstanceId: id + "-i0", RunId: run, Old: from, New: to, Time: minutes(minute)}
}

func TestVerifyHistory(t *testing.T) {
	run := uuid.New()
	tests := map[string]struct {
		history                      []StatusChange
		dependencies                 map[string][]string
		completed                    map[string]bool
		expectedDependencyViolations int
		expectedInvalidTransitions   int
	}{
		"empty": {},
		"valid run": {
			history: []StatusChange{
				jobChange("a", "pending", "queued", 0),
				instanceChange("a", run, "pending", "running", 1),
				jobChange("a", "queued", "running", 1),
				instanceChange("a", run, "running", "degraded", 2),
				instanceChange("a", run, "degraded", "running", 3),
				instanceChange("a", run, "running", "terminated", 4),
				jobChange("a", "running", "completed", 4),
				jobChange("b", "pending", "queued", 4),
				jobChange("b", "queued", "running", 5),
			},
			dependencies: map[string][]string{"b": {"a"}},
			completed:    map[string]bool{"a": true},
		},
		"started before dependency completed": {
			history: []StatusChange{
				jobChange("a", "pending", "queued", 0),
				jobChange("a", "queued", "running", 1),
				jobChange("b", "pending", "queued", 1),
				jobChange("b", "queued", "running", 1),
				jobChange("a", "running", "completed", 4),
			},
			dependencies:                 map[string][]string{"b": {"a"}},
			completed:                    map[string]bool{"a": true},
			expectedDependencyViolations: 1,
		},
		"completed without dependency": {
			history: []StatusChange{
				jobChange("b", "running", "completed", 4),
			},
			dependencies:                 map[string][]string{"b": {"a"}},
			completed:                    map[string]bool{"b": true},
			expectedDependencyViolations: 1,
		},
		"instance interrupted while degraded": {
			history: []StatusChange{
				instanceChange("a", run, "pending", "running", 1),
				instanceChange("a", run, "running", "degraded", 2),
				instanceChange("a", run, "degraded", "interrupted", 3),
			},
			expectedInvalidTransitions: 1,
		},
		"instance moved out of terminal status": {
			history: []StatusChange{
				instanceChange("a", run, "pending", "running", 1),
				instanceChange("a", run, "running", "failed", 2),
				instanceChange("a", run, "failed", "running", 3),
			},
			expectedInvalidTransitions: 1,
		},
		"instance skipped a status": {
			history: []StatusChange{
				instanceChange("a", run, "pending", "running", 1),
				instanceChange("a", run, "stopping", "terminated", 2),
			},
			expectedInvalidTransitions: 1,
		},
		"unknown instance status": {
			history: []StatusChange{
				instanceChange("a", run, "pending", "exploded", 1),
			},
			expectedInvalidTransitions: 1,
		},
		"job moved out of terminal status": {
			history: []StatusChange{
				jobChange("a", "running", "failed", 1),
				jobChange("a", "failed", "preparing", 2),
			},
			expectedInvalidTransitions: 1,
		},
		"job history out of order": {
			history: []StatusChange{
				jobChange("a", "pending", "queued", 0),
				jobChange("a", "running", "completed", 1),
			},
			completed:                  map[string]bool{"a": true},
			expectedInvalidTransitions: 1,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			report := verifyHistory(tc.history, tc.dependencies, tc.completed)
			assert.Len(t, report.DependencyViolations, tc.expectedDependencyViolations, report.DependencyViolations)
			assert.Len(t, report.InvalidTransitions, tc.expectedInvalidTransitions, report.InvalidTransitions)
			assert.Empty(t, report.ResourceViolations)
			assert.Equal(t, tc.expectedDependencyViolations == 0 && tc.expectedInvalidTransitions == 0, report.Ok())
		})
	}
}

func TestScheduler_VerifyExecution(t *testing.T) {
	config := configuration.DefaultSchedulingConfig()
	config.ZoneQuota = configuration.ZoneQuotaConfig{Fraction: 0.8, Policy: configuration.RejectPolicy, MaxDeferrals: 3}
	s, _ := newTestScheduler(t, config, testfixtures.Cpu(20))
	for _, job := range testfixtures.RandomJobs(s.rng, 25, 6) {
		require.NoError(t, s.AddJob(job))
	}
	for i := 0; i < 300; i++ {
		s.ScheduleNextBatch(minutes(i))
		s.UpdateJobStatus(minutes(i))
		if i%50 == 0 {
			assert.Empty(t, s.VerifyExecution().ResourceViolations)
		}
	}

	report := s.VerifyExecution()
	assert.True(t, report.Ok(), "%s: %v %v %v", report, report.DependencyViolations, report.InvalidTransitions, report.ResourceViolations)
	assert.Equal(t, "{DependencyViolations: 0, InvalidTransitions: 0, ResourceViolations: 0}", report.String())
}

func TestScheduler_VerifyExecutionReportsResourceLeaks(t *testing.T) {
	s, _ := newTestScheduler(t, testfixtures.TestSchedulingConfig(), testfixtures.Cpu(10))
	require.NoError(t, s.AddJob(testfixtures.NewJob(testfixtures.JobOptions{Id: "a", InstanceResources: testfixtures.Cpu(2)})))
	s.ScheduleNextBatch(minutes(0))
	require.True(t, s.VerifyExecution().Ok())

	// Capacity allocated behind the scheduler's back is not held by any running job.
	require.True(t, s.Pool().Allocate(testfixtures.Cpu(3)))
	report := s.VerifyExecution()
	assert.False(t, report.Ok())
	assert.Len(t, report.ResourceViolations, 1)
}
