package simulator

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/scheduler/resources"
)

// ClusterSpec describes the capacity of a simulated cluster.
type ClusterSpec struct {
	Name string
	// Total capacity, e.g. {cpu: 64, memory: 262144, gpu: 8}.
	Resources resources.Vector
}

// WorkloadSpec describes the jobs submitted during a simulation.
type WorkloadSpec struct {
	Name string
	// Seeds every random draw of the simulation. If zero, the current time is used.
	RandomSeed   int64
	JobTemplates []*JobTemplate
}

// JobTemplate describes a set of identical jobs.
type JobTemplate struct {
	// Unique within the workload. Jobs created from the template are named <Id>-<index>.
	Id string
	// Number of jobs created from the template.
	Number   int
	JobType  string
	Priority int
	Spot     bool
	// If nil, the scheduling config's DefaultMaxRetries applies.
	MaxRetries *int
	// Ids of templates every job of this template depends on. A job depends on every job created from those templates.
	Dependencies []string
	// Time after the start of the simulation at which the jobs are submitted.
	SubmitOffset time.Duration
	// Error rates of the instances are drawn uniformly from [0, MaxErrorRate].
	MaxErrorRate float64
	Tasks        []*TaskTemplate
}

// TaskTemplate describes one task of every job created from a JobTemplate.
type TaskTemplate struct {
	TaskType     string
	NumInstances int
	// Resources required by each instance.
	Requirements resources.Vector
}

func initialiseWorkloadSpec(workloadSpec *WorkloadSpec) {
	// Assign ids to job templates with none specified.
	for i, jobTemplate := range workloadSpec.JobTemplates {
		if jobTemplate.Id == "" {
			jobTemplate.Id = fmt.Sprintf("%s-%d", workloadSpec.Name, i)
		}
		for _, taskTemplate := range jobTemplate.Tasks {
			if taskTemplate.NumInstances == 0 {
				taskTemplate.NumInstances = 1
			}
		}
	}
}

func validateClusterSpec(clusterSpec *ClusterSpec) error {
	if clusterSpec.Name == "" {
		return errors.Errorf("cluster name cannot be empty")
	}
	if !clusterSpec.Resources.IsNonNegative() || clusterSpec.Resources.IsZero() {
		return errors.Errorf("cluster %s has invalid resources %s", clusterSpec.Name, clusterSpec.Resources)
	}
	return nil
}

// validateWorkloadSpec returns every problem with workloadSpec. Templates may only depend on templates listed before
// them and submitted no later than them, so that jobs can be added to the scheduler in order.
func validateWorkloadSpec(workloadSpec *WorkloadSpec) error {
	var result *multierror.Error
	seen := make(map[string]*JobTemplate)
	for _, template := range workloadSpec.JobTemplates {
		if _, ok := seen[template.Id]; ok {
			result = multierror.Append(result, errors.Errorf("duplicate job template id %s", template.Id))
		}
		if template.Number < 1 {
			result = multierror.Append(result, errors.Errorf("template %s: number must be greater than 0", template.Id))
		}
		if template.Priority < 0 {
			result = multierror.Append(result, errors.Errorf("template %s: priority must not be negative", template.Id))
		}
		if template.MaxRetries != nil && *template.MaxRetries < 0 {
			result = multierror.Append(result, errors.Errorf("template %s: maxRetries must not be negative", template.Id))
		}
		if template.SubmitOffset < 0 {
			result = multierror.Append(result, errors.Errorf("template %s: submitOffset must not be negative", template.Id))
		}
		if template.MaxErrorRate < 0 || template.MaxErrorRate > 1 {
			result = multierror.Append(result, errors.Errorf("template %s: maxErrorRate must be in [0, 1]", template.Id))
		}
		if len(template.Tasks) == 0 {
			result = multierror.Append(result, errors.Errorf("template %s has no tasks", template.Id))
		}
		for i, task := range template.Tasks {
			if task.NumInstances < 1 {
				result = multierror.Append(result, errors.Errorf("template %s task %d: numInstances must be greater than 0", template.Id, i))
			}
			if !task.Requirements.IsNonNegative() {
				result = multierror.Append(result, errors.Errorf("template %s task %d: requirements must not be negative", template.Id, i))
			}
		}
		for _, dep := range template.Dependencies {
			parent, ok := seen[dep]
			if !ok {
				result = multierror.Append(result, errors.Errorf("template %s depends on %s, which is not listed before it", template.Id, dep))
			} else if parent.SubmitOffset > template.SubmitOffset {
				result = multierror.Append(result, errors.Errorf("template %s is submitted before template %s it depends on", template.Id, dep))
			}
		}
		seen[template.Id] = template
	}
	return result.ErrorOrNil()
}
