package jobdb

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testInstance() *Instance {
	inst := NewInstance("i-0", resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 4, resources.Memory: 1000}), 0.1, 2)
	NewTask("t-0", "data_processing", []*Instance{inst})
	return inst
}

func TestInstance_StartAndProgress(t *testing.T) {
	inst := testInstance()
	assert.Equal(t, InstancePending, inst.Status())
	assert.False(t, inst.Started())
	assert.Equal(t, 0.0, inst.Progress(baseTime))

	require.NoError(t, inst.Start(baseTime, baseTime.Add(10*time.Minute)))
	assert.Equal(t, InstanceRunning, inst.Status())
	assert.Equal(t, baseTime, inst.StartTime())
	assert.Equal(t, baseTime.Add(10*time.Minute), inst.EndTime())

	assert.InDelta(t, 0.5, inst.Progress(baseTime.Add(5*time.Minute)), 1e-9)
	assert.Equal(t, 1.0, inst.Progress(baseTime.Add(time.Hour)))

	assert.Error(t, inst.Start(baseTime, baseTime.Add(time.Minute)), "already started")
}

func TestInstance_StartRejectsDeadlineInThePast(t *testing.T) {
	inst := testInstance()
	assert.Error(t, inst.Start(baseTime, baseTime))
	assert.Equal(t, InstancePending, inst.Status())
}

func TestInstance_TerminalMonotonicity(t *testing.T) {
	inst := testInstance()
	require.NoError(t, inst.Start(baseTime, baseTime.Add(10*time.Minute)))
	require.NoError(t, inst.SetStatus(InstanceFailed, baseTime.Add(time.Minute)))

	err := inst.SetStatus(InstanceRunning, baseTime.Add(2*time.Minute))
	var terminalErr *ErrTerminalStatus
	require.True(t, errors.As(err, &terminalErr))
	assert.Equal(t, "instance", terminalErr.Kind)
	assert.Equal(t, InstanceFailed, inst.Status())
	assert.Equal(t, baseTime.Add(time.Minute), inst.EndTime())
	assert.Equal(t, baseTime.Add(time.Minute), inst.LastTransitionTime())
}

func TestInstance_FinalUsage(t *testing.T) {
	inst := testInstance()
	require.NoError(t, inst.Start(baseTime, baseTime.Add(10*time.Minute)))
	require.NoError(t, inst.SetStatus(InstanceTerminated, baseTime.Add(10*time.Minute)))

	// data_processing uses 60-90% cpu and 50-80% memory.
	expected := resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 3, resources.Memory: 650})
	assert.True(t, inst.CurrentUsage().Equal(expected), inst.CurrentUsage().String())
	assert.True(t, inst.PeakUsage().Dominates(expected))
	assert.Equal(t, 1.0, inst.Progress(baseTime))
}

func TestInstance_SetUsageIsBoundedByRequired(t *testing.T) {
	inst := testInstance()
	inst.SetUsage(resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 10, resources.Memory: -5}))
	assert.True(t, inst.CurrentUsage().Equal(resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 4})))

	inst.SetUsage(resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 1}))
	assert.True(t, inst.CurrentUsage().Equal(resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 1})))
	assert.True(t, inst.PeakUsage().Equal(resources.NewVector(map[resources.Dimension]float64{resources.Cpu: 4})))
}

func TestInstance_PreemptWithCheckpoint(t *testing.T) {
	inst := testInstance()
	require.NoError(t, inst.Start(baseTime, baseTime.Add(10*time.Minute)))

	now := baseTime.Add(4 * time.Minute)
	require.NoError(t, inst.Preempt(now, now.Add(2*time.Minute), true))
	assert.Equal(t, InstancePreempting, inst.Status())
	assert.Equal(t, now.Add(2*time.Minute), inst.PreemptionTime())
	assert.Equal(t, now, inst.CheckpointTime())
	assert.InDelta(t, 0.4, inst.CheckpointProgress(), 1e-9)

	assert.Error(t, inst.Preempt(now, now, false), "already preempting")

	next := inst.nextRun(1)
	assert.NotEqual(t, inst.RunId(), next.RunId())
	assert.Equal(t, inst.Id(), next.Id())
	assert.Equal(t, InstancePending, next.Status())
	assert.InDelta(t, 0.4, next.Progress(now), 1e-9)
}

func TestInstance_Restart(t *testing.T) {
	inst := testInstance()
	assert.True(t, inst.Restart())
	assert.True(t, inst.Restart())
	assert.False(t, inst.Restart())
	assert.Equal(t, 2, inst.Restarts())
}

func TestParseInstanceStatus(t *testing.T) {
	for s := InstancePending; s <= InstanceInterrupted; s++ {
		parsed, err := ParseInstanceStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseInstanceStatus("sleeping")
	assert.Error(t, err)
}
