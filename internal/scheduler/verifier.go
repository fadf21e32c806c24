package scheduler

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
	"github.com/armadaproject/clustersim/internal/scheduler/lifecycle"
	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// ExecutionReport lists what a run did wrong. The report of a correct run is empty.
type ExecutionReport struct {
	// Jobs that started or completed without all of their dependencies having completed.
	DependencyViolations []string
	// Status changes the job or instance lifecycle does not allow.
	InvalidTransitions []string
	// Disagreements between the pool and what running jobs hold.
	ResourceViolations []string
}

func (r ExecutionReport) Ok() bool {
	return len(r.DependencyViolations) == 0 && len(r.InvalidTransitions) == 0 && len(r.ResourceViolations) == 0
}

func (r ExecutionReport) String() string {
	return fmt.Sprintf(
		"{DependencyViolations: %d, InvalidTransitions: %d, ResourceViolations: %d}",
		len(r.DependencyViolations), len(r.InvalidTransitions), len(r.ResourceViolations),
	)
}

// VerifyExecution checks the status change log against the dependency graph and the job and instance lifecycles, and
// checks that the pool accounts for exactly what running jobs hold.
func (s *Scheduler) VerifyExecution() ExecutionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	dependencies := make(map[string][]string)
	for _, job := range s.jobDb.GetAll() {
		dependencies[job.Id()] = job.Dependencies()
	}
	rv := verifyHistory(s.history, dependencies, s.completed)

	var allocated resources.Vector
	for _, id := range s.sortedRunningIds() {
		allocated = allocated.Add(s.running[id].allocation)
	}
	if !allocated.Equal(s.pool.Allocated()) {
		rv.ResourceViolations = append(rv.ResourceViolations, fmt.Sprintf(
			"running jobs hold %s but the pool has %s allocated", allocated, s.pool.Allocated(),
		))
	}
	if !s.pool.Available().IsNonNegative() {
		rv.ResourceViolations = append(rv.ResourceViolations, fmt.Sprintf(
			"pool has negative availability %s", s.pool.Available(),
		))
	}
	if !s.pool.Available().Add(s.pool.Allocated()).Equal(s.pool.Total()) {
		rv.ResourceViolations = append(rv.ResourceViolations, fmt.Sprintf(
			"available %s and allocated %s do not add up to total %s", s.pool.Available(), s.pool.Allocated(), s.pool.Total(),
		))
	}
	return rv
}

// verifyHistory replays history, oldest first.
// Each entry must continue from the status the previous entry for the same job or run left it in, and must be a move
// the lifecycle allows. A job may only start once all its dependencies have completed; every dependency of a
// completed job must itself be in completed.
func verifyHistory(history []StatusChange, dependencies map[string][]string, completed map[string]bool) ExecutionReport {
	var rv ExecutionReport
	jobStatuses := make(map[string]string)
	runStatuses := make(map[uuid.UUID]string)
	completedSoFar := make(map[string]bool)

	for i, change := range history {
		if change.IsJobChange() {
			if msg := checkJobChange(change, jobStatuses[change.JobId]); msg != "" {
				rv.InvalidTransitions = append(rv.InvalidTransitions, fmt.Sprintf("entry %d: %s", i, msg))
			}
			jobStatuses[change.JobId] = change.New
			switch change.New {
			case jobdb.JobRunning.String():
				for _, dep := range dependencies[change.JobId] {
					if !completedSoFar[dep] {
						rv.DependencyViolations = append(rv.DependencyViolations, fmt.Sprintf(
							"job %s started at %s before dependency %s completed", change.JobId, change.Time, dep,
						))
					}
				}
			case jobdb.JobCompleted.String():
				completedSoFar[change.JobId] = true
			}
			continue
		}
		if msg := checkInstanceChange(change, runStatuses[change.RunId]); msg != "" {
			rv.InvalidTransitions = append(rv.InvalidTransitions, fmt.Sprintf("entry %d: %s", i, msg))
		}
		runStatuses[change.RunId] = change.New
	}

	ids := make([]string, 0, len(completed))
	for id, ok := range completed {
		if ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		for _, dep := range dependencies[id] {
			if !completed[dep] {
				rv.DependencyViolations = append(rv.DependencyViolations, fmt.Sprintf(
					"job %s completed but dependency %s did not", id, dep,
				))
			}
		}
	}
	return rv
}

// checkJobChange returns what is wrong with change, given the status the job was last seen in, or "" if nothing is.
func checkJobChange(change StatusChange, last string) string {
	if last != "" && change.Old != last {
		return fmt.Sprintf("job %s moved from %s but was %s", change.JobId, change.Old, last)
	}
	if terminalJobStatusNames[change.Old] {
		return fmt.Sprintf("job %s moved out of terminal status %s to %s", change.JobId, change.Old, change.New)
	}
	if change.Old == change.New {
		return fmt.Sprintf("job %s moved from %s to itself", change.JobId, change.Old)
	}
	return ""
}

// checkInstanceChange returns what is wrong with change, given the status the run was last seen in, or "" if nothing
// is.
func checkInstanceChange(change StatusChange, last string) string {
	if last != "" && change.Old != last {
		return fmt.Sprintf("instance %s moved from %s but was %s", change.InstanceId, change.Old, last)
	}
	from, err := jobdb.ParseInstanceStatus(change.Old)
	if err != nil {
		return fmt.Sprintf("instance %s moved from unknown status %s", change.InstanceId, change.Old)
	}
	to, err := jobdb.ParseInstanceStatus(change.New)
	if err != nil {
		return fmt.Sprintf("instance %s moved to unknown status %s", change.InstanceId, change.New)
	}
	if !lifecycle.ValidInstanceTransition(from, to) {
		return fmt.Sprintf("instance %s moved from %s to %s", change.InstanceId, from, to)
	}
	return ""
}

var terminalJobStatusNames = map[string]bool{
	jobdb.JobCompleted.String():   true,
	jobdb.JobFailed.String():      true,
	jobdb.JobInterrupted.String(): true,
}
