package scheduler

import (
	"github.com/armadaproject/clustersim/internal/scheduler/jobdb"
)

// queuedJob is an entry of the pending queue.
type queuedJob struct {
	job *jobdb.Job
	// Jobs with equal priority are ordered by the sequence number they were assigned when first queued.
	sequenceNumber int
	// Maintained by the heap.Interface methods.
	index int
}

// jobQueue is a priority queue of jobs; lower priority values come out first. Implements heap.Interface.
type jobQueue []*queuedJob

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].job.Priority() == q[j].job.Priority() {
		return q[i].sequenceNumber < q[j].sequenceNumber
	}
	return q[i].job.Priority() < q[j].job.Priority()
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	n := len(*q)
	item := x.(*queuedJob)
	item.index = n
	*q = append(*q, item)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*q = old[0 : n-1]
	return item
}
