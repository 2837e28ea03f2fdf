package task

import (
	"context"
	"encoding/json"
	"time"
)

// RuntimeState is the job runtime's native vocabulary for job states.
// These names never leave the orchestrator: the service layer translates
// them into the externally visible task statuses at one boundary.
type RuntimeState string

// Native runtime state values
const (
	StateQueued  RuntimeState = "QUEUED"
	StateRunning RuntimeState = "RUNNING"
	StateSuccess RuntimeState = "SUCCESS"
	StateFailure RuntimeState = "FAILURE"
	StateRevoked RuntimeState = "REVOKED"
)

// RuntimeUpdate is one progress or completion report from the runtime.
type RuntimeUpdate struct {
	// JobID identifies the job the update belongs to.
	JobID string

	// State is the runtime's native state for the job.
	State RuntimeState

	// Progress is the completion percentage, meaningful for RUNNING updates.
	Progress int

	// Message is a human-readable description of the current step.
	Message string

	// Payload carries the job result on SUCCESS.
	Payload json.RawMessage

	// Err carries the failure description on FAILURE.
	Err string
}

// Reporter translates native runtime updates into durable task records.
// The runner is the only producer of updates; the reporter implementation
// is the only component allowed to write task status.
type Reporter interface {
	// Report applies a single runtime update.
	Report(ctx context.Context, update RuntimeUpdate) error

	// FailStale marks jobs that have reported no progress within age as
	// failed, returning how many were affected. The runner calls this
	// periodically to reap jobs orphaned by crashes.
	FailStale(ctx context.Context, age time.Duration) (int64, error)
}

// ProgressFunc is handed to a job so it can report incremental progress
// while executing.
type ProgressFunc func(progress int, message string)

// Job represents a unit of background work to be processed.
type Job interface {
	// ID returns the job's unique identifier.
	ID() string

	// Kind returns the job kind identifier.
	Kind() string

	// Execute runs the job, reporting incremental progress through the
	// given callback, and returns an opaque result payload on success.
	Execute(ctx context.Context, progress ProgressFunc) (json.RawMessage, error)
}

// JobQueueReader provides read-only access to the job channel, allowing
// workers to consume jobs without the ability to enqueue.
type JobQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs.
	GetChannel() <-chan Job
}

// JobQueueWriter provides write access to the job queue.
type JobQueueWriter interface {
	// Enqueue adds a job to the queue for processing.
	// Returns an error if the queue is full or closed.
	Enqueue(job Job) error

	// Close closes the job queue, preventing further submission.
	Close()
}
