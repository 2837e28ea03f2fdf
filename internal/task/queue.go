package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Queue states a submission can run into
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrQueueFull   = errors.New("job queue is full")
)

// JobQueue is the buffered hand-off between scan submission and the worker
// pool. Closing it wakes every worker draining the channel.
type JobQueue struct {
	jobs   chan Job
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewJobQueue creates a queue holding at most size queued scan jobs.
func NewJobQueue(size int, logger *slog.Logger) *JobQueue {
	return &JobQueue{
		jobs:   make(chan Job, size),
		logger: logger,
	}
}

// Enqueue adds a job without blocking. ErrQueueFull means the buffer is at
// capacity; ErrQueueClosed means the runner is shutting down.
func (q *JobQueue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"job_id", job.ID(),
			"job_kind", job.Kind(),
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close stops further submissions; workers drain whatever remains queued.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("job queue closed")
	}
}

// GetChannel exposes the consuming side of the queue to the workers.
func (q *JobQueue) GetChannel() <-chan Job {
	return q.jobs
}
