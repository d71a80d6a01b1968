package engine

import (
	"sync"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Job is one batch waiting for a worker.
type Job struct {
	Batch *enrollment.Batch
	// Done, if non-nil, receives the result. It should be buffered; a
	// worker blocks until the result is taken.
	Done chan<- Result
}

// Result is the outcome of one job.
type Result struct {
	Report *Report
	Err    error
}

// jobQueue is a thread-safe unbounded FIFO of jobs.
//
// The signal channel lets workers wait with a context. It has a buffer of
// one, so concurrent enqueues coalesce; a worker that dequeues re-signals
// while jobs remain so idle workers wake up.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []Job
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]Job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue. Returns false once the queue
// is closed.
func (q *jobQueue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	q.notify()
	return true
}

// TryDequeue removes the front job without blocking.
func (q *jobQueue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}
	j := q.jobs[0]

	// Clear the slot so the batch can be collected.
	q.jobs[0] = Job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
		if !q.closed {
			q.notify()
		}
	}
	return j, true
}

// notify must be called with mu held and the queue open.
func (q *jobQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns a channel that signals when jobs may be available. It is
// closed when the queue closes.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Drained reports whether the queue is closed and empty.
func (q *jobQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.jobs) == 0
}

// Close stops new enqueues and wakes every waiter.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
