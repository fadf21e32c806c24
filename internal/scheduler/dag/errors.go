package dag

import "fmt"

// DependencyReason says why a dependency was rejected.
type DependencyReason string

const (
	// The dependency names a job the graph does not know about.
	ReasonMissing DependencyReason = "missing"
	// The job depends on itself.
	ReasonSelf DependencyReason = "self"
	// Adding the dependency would close a cycle.
	ReasonCycle DependencyReason = "cycle"
)

// DependencyError is returned when a job's dependencies are invalid.
type DependencyError struct {
	JobId      string
	Dependency string
	Reason     DependencyReason
}

func (err *DependencyError) Error() string {
	switch err.Reason {
	case ReasonMissing:
		return fmt.Sprintf("job %s depends on unknown job %s", err.JobId, err.Dependency)
	case ReasonSelf:
		return fmt.Sprintf("job %s depends on itself", err.JobId)
	case ReasonCycle:
		return fmt.Sprintf("dependency of job %s on %s creates a cycle", err.JobId, err.Dependency)
	default:
		return fmt.Sprintf("invalid dependency of job %s on %s: %s", err.JobId, err.Dependency, err.Reason)
	}
}
