package jobdb

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

func cpu(q float64) resources.Vector {
	return resources.NewVector(map[resources.Dimension]float64{resources.Cpu: q})
}

func testJob(t *testing.T, id string, maxRetries int) *Job {
	tasks := []*Task{
		NewTask(id+"-t0", "etl_pipeline", []*Instance{
			NewInstance(id+"-i0", cpu(1), 0.1, 0),
			NewInstance(id+"-i1", cpu(2), 0.2, 0),
		}),
		NewTask(id+"-t1", "model_training", []*Instance{
			NewInstance(id+"-i2", cpu(3), 0.3, 0),
		}),
	}
	job, err := NewJob(id, "ml_pipeline", 3, true, []string{"a", "b"}, tasks, maxRetries)
	require.NoError(t, err)
	return job
}

func TestNewJob(t *testing.T) {
	job := testJob(t, "j", 1)
	assert.Equal(t, "j", job.Id())
	assert.Equal(t, JobPending, job.Status())
	assert.True(t, job.Required().Equal(cpu(6)))
	assert.Len(t, job.Instances(), 3)
	for _, inst := range job.Instances() {
		assert.Equal(t, "j", inst.JobId())
		assert.True(t, inst.Spot())
	}
	assert.Equal(t, "model_training", job.Tasks()[1].Instances()[0].Profile().TaskType)
	assert.Equal(t, []string{"a", "b"}, job.Dependencies())
}

func TestNewJob_Invalid(t *testing.T) {
	tests := map[string]struct {
		id         string
		priority   int
		maxRetries int
		tasks      []*Task
	}{
		"empty id":          {id: "", tasks: []*Task{NewTask("t", "", []*Instance{NewInstance("i", cpu(1), 0, 0)})}},
		"negative priority": {id: "j", priority: -1, tasks: []*Task{NewTask("t", "", []*Instance{NewInstance("i", cpu(1), 0, 0)})}},
		"negative retries":  {id: "j", maxRetries: -1, tasks: []*Task{NewTask("t", "", []*Instance{NewInstance("i", cpu(1), 0, 0)})}},
		"no instances":      {id: "j", tasks: []*Task{NewTask("t", "", nil)}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewJob(tc.id, "", tc.priority, false, nil, tc.tasks, tc.maxRetries)
			var e *armadaerrors.ErrInvalidArgument
			assert.True(t, errors.As(err, &e))
		})
	}
}

func TestJob_SetStatus(t *testing.T) {
	job := testJob(t, "j", 0)
	job.SetThrottleReason("over quota")
	require.NoError(t, job.SetStatus(JobRunning, baseTime))
	assert.Equal(t, baseTime, job.StartTime())
	assert.Empty(t, job.ThrottleReason())

	require.NoError(t, job.SetStatus(JobCompleted, baseTime.Add(time.Hour)))
	assert.Equal(t, baseTime.Add(time.Hour), job.EndTime())

	assert.Error(t, job.SetStatus(JobRunning, baseTime.Add(2*time.Hour)))
	assert.NoError(t, job.SetStatus(JobCompleted, baseTime.Add(2*time.Hour)))
	assert.Equal(t, baseTime.Add(time.Hour), job.LastTransitionTime())
}

func TestJob_Retry(t *testing.T) {
	job := testJob(t, "j", 1)
	require.NoError(t, job.SetStatus(JobRunning, baseTime))
	oldInstances := job.Instances()
	for _, inst := range oldInstances {
		require.NoError(t, inst.Start(baseTime, baseTime.Add(time.Hour)))
		require.NoError(t, inst.SetStatus(InstanceFailed, baseTime.Add(time.Minute)))
	}

	require.NoError(t, job.Retry(baseTime.Add(time.Minute)))
	assert.Equal(t, JobPreparing, job.Status())
	assert.Equal(t, 1, job.RetryCount())
	assert.Equal(t, 1, job.Attempt())
	require.Len(t, job.PreviousAttempts(), 1)

	for i, inst := range job.Instances() {
		assert.Equal(t, InstancePending, inst.Status())
		assert.Equal(t, oldInstances[i].Id(), inst.Id())
		assert.NotEqual(t, oldInstances[i].RunId(), inst.RunId())
		assert.Equal(t, 1, inst.Attempt())
		// Earlier runs keep their terminal status.
		assert.Equal(t, InstanceFailed, oldInstances[i].Status())
	}
	assert.False(t, job.CanRetry())
	assert.Error(t, job.Retry(baseTime.Add(2*time.Minute)))
}

func TestJob_Progress(t *testing.T) {
	job := testJob(t, "j", 0)
	instances := job.Instances()
	require.NoError(t, instances[0].Start(baseTime, baseTime.Add(10*time.Minute)))
	require.NoError(t, instances[1].Start(baseTime, baseTime.Add(20*time.Minute)))
	require.NoError(t, instances[2].Start(baseTime, baseTime.Add(10*time.Minute)))
	require.NoError(t, instances[2].SetStatus(InstanceTerminated, baseTime.Add(10*time.Minute)))

	// (1 + 0.5 + 1) / 3
	assert.InDelta(t, 2.5/3, job.Progress(baseTime.Add(10*time.Minute)), 1e-9)
	assert.False(t, job.IsPreempting())

	require.NoError(t, instances[1].Preempt(baseTime.Add(10*time.Minute), baseTime.Add(12*time.Minute), false))
	assert.True(t, job.IsPreempting())
}

func TestTask_SetStatus(t *testing.T) {
	task := NewTask("t", "", []*Instance{NewInstance("i", cpu(1), 0, 0)})
	require.NoError(t, task.SetStatus(TaskRunning, baseTime))
	require.NoError(t, task.SetStatus(TaskInterrupted, baseTime.Add(time.Minute)))
	assert.Error(t, task.SetStatus(TaskRunning, baseTime.Add(2*time.Minute)))
	assert.Equal(t, TaskInterrupted, task.Status())
	assert.Equal(t, baseTime.Add(time.Minute), task.LastTransitionTime())
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, UsagePattern{0.8, 1.0}, ProfileFor("model_training").Gpu)
	assert.True(t, KnownTaskType("model_training"))

	unknown := ProfileFor("quantum_annealing")
	assert.False(t, KnownTaskType("quantum_annealing"))
	assert.Equal(t, "quantum_annealing", unknown.TaskType)
	assert.Equal(t, ProfileFor(DefaultTaskType).Cpu, unknown.Cpu)
	assert.InDelta(t, 0.65, unknown.Cpu.Mean(), 1e-9)
	assert.InDelta(t, 0.65, unknown.Cpu.At(0.5), 1e-9)
}
