package simulator

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/clustersim/internal/scheduler"
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// MetricsCollector tallies what happened during a simulation, in total and per job type.
type MetricsCollector struct {
	Total            Metrics
	MetricsByJobType map[string]Metrics
	jobTypeByJobId   map[string]string
	startTime        time.Time
}

func NewMetricsCollector(startTime time.Time) *MetricsCollector {
	return &MetricsCollector{
		MetricsByJobType: make(map[string]Metrics),
		jobTypeByJobId:   make(map[string]string),
		startTime:        startTime,
	}
}

func (mc *MetricsCollector) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	sb.WriteString(fmt.Sprintf("Total: %s, JobTypes: {", mc.Total))

	jobTypes := maps.Keys(mc.MetricsByJobType)
	slices.Sort(jobTypes)
	for i, jobType := range jobTypes {
		sb.WriteString(fmt.Sprintf("%s: %s", jobType, mc.MetricsByJobType[jobType]))
		if i != len(jobTypes)-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}}")
	return sb.String()
}

type Metrics struct {
	// Simulated time from the start of the simulation to the last job completing.
	LastJobCompletion   time.Duration
	NumStatusChanges    int
	NumJobsSubmitted    int
	NumAdmissions       int
	NumPreemptionEvents int
	NumRetries          int
	NumCompleted        int
	NumFailed           int
	NumInterrupted      int
}

func (m Metrics) String() string {
	return fmt.Sprintf(
		"{LastJobCompletion: %s, NumJobsSubmitted: %d, NumAdmissions: %d, NumPreemptionEvents: %d, NumRetries: %d, NumCompleted: %d, NumFailed: %d, NumInterrupted: %d}",
		m.LastJobCompletion, m.NumJobsSubmitted, m.NumAdmissions, m.NumPreemptionEvents, m.NumRetries, m.NumCompleted, m.NumFailed, m.NumInterrupted,
	)
}

func (mc *MetricsCollector) addSubmission(job *jobdb.Job) {
	mc.jobTypeByJobId[job.Id()] = job.JobType()
	mc.update(job.Id(), func(m *Metrics) { m.NumJobsSubmitted++ })
}

func (mc *MetricsCollector) addAdmissions(jobs []*jobdb.Job) {
	for _, job := range jobs {
		mc.update(job.Id(), func(m *Metrics) { m.NumAdmissions++ })
	}
}

func (mc *MetricsCollector) addStatusChanges(changes []scheduler.StatusChange) {
	for _, change := range changes {
		change := change
		mc.update(change.JobId, func(m *Metrics) {
			m.NumStatusChanges++
			if !change.IsJobChange() {
				if change.New == jobdb.InstancePreempting.String() {
					m.NumPreemptionEvents++
				}
				return
			}
			switch change.New {
			case jobdb.JobPreparing.String():
				m.NumRetries++
			case jobdb.JobCompleted.String():
				m.NumCompleted++
				m.LastJobCompletion = change.Time.Sub(mc.startTime)
			case jobdb.JobFailed.String():
				m.NumFailed++
			case jobdb.JobInterrupted.String():
				m.NumInterrupted++
			}
		})
	}
}

// update applies f to the totals and to the metrics of the job type of jobId.
func (mc *MetricsCollector) update(jobId string, f func(m *Metrics)) {
	f(&mc.Total)
	jobType := mc.jobTypeByJobId[jobId]
	entry := mc.MetricsByJobType[jobType]
	f(&entry)
	mc.MetricsByJobType[jobType] = entry
}
