package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/store"
	"github.com/PPS-H/Invoice-manager-backend/internal/task"
)

// StatusReporter is the single translation boundary between the job
// runtime's native state vocabulary and the externally visible task
// statuses. No other component writes task status, and callers never see
// runtime-native state names.
//
// Translation table:
//
//	QUEUED  -> PENDING (no-op; the row is created PENDING at admission)
//	RUNNING -> PROGRESS (monotonic progress, message updated)
//	SUCCESS -> DONE (progress forced to 100, result recorded)
//	FAILURE -> FAILURE (progress frozen, error recorded)
//	REVOKED -> CANCELLED
//
// Terminal rows are immutable: the store's guarded mutators drop late
// updates, so a callback arriving after cancellation cannot reopen a task.
type StatusReporter struct {
	store  store.ScanTaskStore
	logger *slog.Logger
}

// Compile-time check that the runtime's reporting contract is satisfied.
var _ task.Reporter = (*StatusReporter)(nil)

// NewStatusReporter creates a StatusReporter writing through the given store.
func NewStatusReporter(scanTaskStore store.ScanTaskStore, logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		store:  scanTaskStore,
		logger: logger,
	}
}

// Report applies a single runtime update to the task record.
func (r *StatusReporter) Report(ctx context.Context, update task.RuntimeUpdate) error {
	switch update.State {
	case task.StateQueued:
		// Admission already created the row in PENDING.
		return nil

	case task.StateRunning:
		return r.store.UpdateProgress(ctx, update.JobID, update.Progress, update.Message)

	case task.StateSuccess:
		return r.store.MarkDone(ctx, update.JobID, update.Payload)

	case task.StateFailure:
		return r.store.MarkFailed(ctx, update.JobID, update.Err)

	case task.StateRevoked:
		return r.store.MarkCancelled(ctx, update.JobID)

	default:
		return fmt.Errorf("unknown runtime state %q for job %s", update.State, update.JobID)
	}
}

// FailStale marks tasks that have reported no progress within age as failed.
func (r *StatusReporter) FailStale(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)

	count, err := r.store.FailStaleProgress(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale tasks: %w", err)
	}

	if count > 0 {
		r.logger.Warn("marked stale scan tasks as failed",
			"count", count,
			"older_than", age)
	}

	return count, nil
}
