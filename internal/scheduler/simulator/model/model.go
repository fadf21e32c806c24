package model

import (
	"time"

	"github.com/armadaproject/clustersim/internal/scheduler"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// StateTransitions are the status changes recorded by the scheduler during one tick of a simulation.
type StateTransitions struct {
	SimulationId string
	Time         time.Time
	Changes      []scheduler.StatusChange
}

// TickSummary describes the state of a simulation at the end of a tick.
type TickSummary struct {
	SimulationId string
	Time         time.Time
	JobsByStatus map[jobdb.JobStatus]int
	Available    resources.Vector
	Allocated    resources.Vector
}
