package scheduler

import (
	"container/heap"
	"sync"

	"fold-orchestrator/core/models"
)

// JobQueue is a priority queue for jobs
type JobQueue struct {
	jobs []*QueuedJob
	mu   sync.Mutex
}

// QueuedJob wraps a job with priority information
type QueuedJob struct {
	Job       *models.Job
	Remaining int // Slots still to predict; fewer is higher priority
	Index     int // For heap.Interface
}

// NewJobQueue creates a new job queue
func NewJobQueue() *JobQueue {
	jq := &JobQueue{
		jobs: make([]*QueuedJob, 0),
	}
	heap.Init(jq)
	return jq
}

// Enqueue adds a job with the number of slots it still has to run
func (jq *JobQueue) Enqueue(job *models.Job, remaining int) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	heap.Push(jq, &QueuedJob{
		Job:       job,
		Remaining: remaining,
	})
}

// PopJob removes and returns the highest priority job
func (jq *JobQueue) PopJob() *models.Job {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.Len() == 0 {
		return nil
	}

	item := heap.Pop(jq).(*QueuedJob)
	return item.Job
}

// Size returns the number of queued jobs
func (jq *JobQueue) Size() int {
	jq.mu.Lock()
	defer jq.mu.Unlock()
	return jq.Len()
}

// Len implements heap.Interface
func (jq *JobQueue) Len() int {
	return len(jq.jobs)
}

// Less orders jobs closest to completion first, then by name
func (jq *JobQueue) Less(i, j int) bool {
	if jq.jobs[i].Remaining != jq.jobs[j].Remaining {
		return jq.jobs[i].Remaining < jq.jobs[j].Remaining
	}
	return jq.jobs[i].Job.Name < jq.jobs[j].Job.Name
}

// Swap swaps two jobs
func (jq *JobQueue) Swap(i, j int) {
	jq.jobs[i], jq.jobs[j] = jq.jobs[j], jq.jobs[i]
	jq.jobs[i].Index = i
	jq.jobs[j].Index = j
}

// Push implements heap.Interface
func (jq *JobQueue) Push(x interface{}) {
	n := len(jq.jobs)
	item := x.(*QueuedJob)
	item.Index = n
	jq.jobs = append(jq.jobs, item)
}

// Pop implements heap.Interface
func (jq *JobQueue) Pop() interface{} {
	old := jq.jobs
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	jq.jobs = old[0 : n-1]
	return item
}
