package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/google/uuid"
)

// ScanTaskStore defines the interface for persisting scan tasks. It is the
// single source of truth for task state: admission control creates rows,
// status reporting mutates them through the guarded mutators below, and the
// retention sweeper deletes terminal rows.
//
// Terminal immutability and progress monotonicity are enforced by the
// implementation (e.g. SQL WHERE guards), not by callers.
type ScanTaskStore interface {
	// CreateIfAbsent atomically inserts the task unless a non-terminal task
	// already exists for the same (owner, target) pair. On conflict it
	// returns the existing row and created=false; the caller decides what to
	// do with the losing submission.
	CreateIfAbsent(ctx context.Context, task *domain.ScanTask) (existing *domain.ScanTask, created bool, err error)

	// GetByTaskID retrieves a scan task by its runtime job ID.
	// Returns ErrScanTaskNotFound if no such task exists.
	GetByTaskID(ctx context.Context, taskID string) (*domain.ScanTask, error)

	// FindActive retrieves the non-terminal scan task for the given
	// owner/target pair, or nil if none exists.
	FindActive(ctx context.Context, ownerID, targetID uuid.UUID) (*domain.ScanTask, error)

	// ListByOwner retrieves the owner's tasks, newest first, up to limit.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.ScanTask, error)

	// ListNonTerminal retrieves every task still in a non-terminal state.
	// Used on startup to requeue work interrupted by a restart.
	ListNonTerminal(ctx context.Context) ([]*domain.ScanTask, error)

	// UpdateProgress moves a non-terminal task to PROGRESS with the given
	// progress percentage and status message. Progress never decreases; a
	// lower value than the stored one is ignored. Updates to terminal rows
	// are silently dropped.
	UpdateProgress(ctx context.Context, taskID string, progress int, message string) error

	// MarkDone moves a non-terminal task to DONE, forces progress to 100,
	// and records the result payload and completion time.
	MarkDone(ctx context.Context, taskID string, result json.RawMessage) error

	// MarkFailed moves a non-terminal task to FAILURE, freezing progress at
	// its last value and recording the error payload and completion time.
	MarkFailed(ctx context.Context, taskID string, errorMsg string) error

	// MarkCancelled moves a non-terminal task to CANCELLED and records the
	// completion time. Cancelling an already terminal task is a no-op.
	MarkCancelled(ctx context.Context, taskID string) error

	// FailStaleProgress marks every PROGRESS task that has not reported
	// since the cutoff as FAILURE, and returns how many rows were affected.
	FailStaleProgress(ctx context.Context, cutoff time.Time) (int64, error)

	// Delete removes a single task row regardless of state. Admission
	// control uses it to undo a record whose job never reached the runtime,
	// so a dispatch failure leaves nothing durable behind.
	Delete(ctx context.Context, taskID string) error

	// DeleteTerminalBefore deletes terminal tasks completed before the
	// cutoff and returns how many rows were deleted. The predicate only
	// ever matches immutable rows, so it is safe to run concurrently with
	// admission and status reporting.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a store instance bound to the given transaction, so a
	// caller can group task writes with other writes atomically.
	WithTx(tx *sql.Tx) ScanTaskStore
}
