package schedulermocks

import (
	"fmt"

	"github.com/armadaproject/clustersim/internal/scheduler/simulator/model"
)

// StatusChangeMatcher matches model.StateTransitions recording that a job moved to a given status.
type StatusChangeMatcher struct {
	JobId  string
	Status string
}

// Matches input against the expected job status change. Instance status changes are ignored.
func (m StatusChangeMatcher) Matches(x interface{}) bool {
	transitions, ok := x.(model.StateTransitions)
	if !ok {
		return false
	}
	for _, change := range transitions.Changes {
		if change.IsJobChange() && change.JobId == m.JobId && change.New == m.Status {
			return true
		}
	}
	return false
}

// String describes what the matcher matches.
func (m StatusChangeMatcher) String() string {
	return fmt.Sprintf("records job %s moving to %s", m.JobId, m.Status)
}
