package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/platform/logger"
	"github.com/PPS-H/Invoice-manager-backend/internal/store"
	"github.com/google/uuid"
)

// scanTaskColumns is the column list shared by every SELECT in this file,
// kept in one place so row scanning stays in sync with queries.
const scanTaskColumns = `task_id, owner_id, target_id, scan_kind, window_months,
	status, progress, message, result, error_message,
	estimated_duration, actual_duration,
	created_at, updated_at, started_at, completed_at`

// nonTerminalStatuses is the SQL guard used by every mutator that must not
// touch terminal rows, and by the active-pair lookups.
const nonTerminalStatuses = `('PENDING', 'PROGRESS')`

// PostgresScanTaskStore implements the store.ScanTaskStore interface using
// PostgreSQL.
type PostgresScanTaskStore struct {
	db store.DBTX
}

// Compile-time check that the interface is satisfied.
var _ store.ScanTaskStore = (*PostgresScanTaskStore)(nil)

// NewPostgresScanTaskStore creates a new PostgresScanTaskStore.
func NewPostgresScanTaskStore(db store.DBTX) *PostgresScanTaskStore {
	return &PostgresScanTaskStore{
		db: db,
	}
}

// WithTx returns a store instance bound to the given transaction.
func (s *PostgresScanTaskStore) WithTx(tx *sql.Tx) store.ScanTaskStore {
	return &PostgresScanTaskStore{
		db: tx,
	}
}

// CreateIfAbsent inserts the task unless a non-terminal task already exists
// for the same (owner, target) pair. The partial unique index on active rows
// makes the insert atomic; the losing racer gets the winner's row back.
func (s *PostgresScanTaskStore) CreateIfAbsent(
	ctx context.Context,
	task *domain.ScanTask,
) (*domain.ScanTask, bool, error) {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO scan_tasks (
			task_id, owner_id, target_id, scan_kind, window_months,
			status, progress, message, estimated_duration, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (owner_id, target_id) WHERE status IN ('PENDING', 'PROGRESS')
		DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		task.TaskID,
		task.OwnerID,
		task.TargetID,
		task.ScanKind,
		task.Window,
		task.Status,
		task.Progress,
		task.Message,
		task.EstimatedDuration,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create scan task",
			"task_id", task.TaskID,
			"owner_id", task.OwnerID,
			"target_id", task.TargetID,
			"error", err)
		return nil, false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		return task, true, nil
	}

	// Lost the insert race; hand back the winner's row.
	existing, err := s.FindActive(ctx, task.OwnerID, task.TargetID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The winner reached a terminal state between our insert and the
		// lookup. Treat it like any other admission conflict; the caller
		// may simply resubmit.
		return nil, false, store.ErrActiveScanExists
	}

	return existing, false, nil
}

// GetByTaskID retrieves a scan task by its runtime job ID.
func (s *PostgresScanTaskStore) GetByTaskID(
	ctx context.Context,
	taskID string,
) (*domain.ScanTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM scan_tasks WHERE task_id = $1`, scanTaskColumns)

	task, err := s.scanRow(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrScanTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// FindActive retrieves the non-terminal scan task for the given owner/target
// pair, or nil if none exists.
func (s *PostgresScanTaskStore) FindActive(
	ctx context.Context,
	ownerID, targetID uuid.UUID,
) (*domain.ScanTask, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM scan_tasks
		WHERE owner_id = $1 AND target_id = $2 AND status IN %s
	`, scanTaskColumns, nonTerminalStatuses)

	task, err := s.scanRow(s.db.QueryRowContext(ctx, query, ownerID, targetID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, MapError(err)
	}

	return task, nil
}

// ListByOwner retrieves the owner's tasks, newest first, up to limit.
func (s *PostgresScanTaskStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	limit int,
) ([]*domain.ScanTask, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM scan_tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, scanTaskColumns)

	return s.queryTasks(ctx, query, ownerID, limit)
}

// ListNonTerminal retrieves every task still in a non-terminal state,
// oldest first so restart recovery preserves submission order.
func (s *PostgresScanTaskStore) ListNonTerminal(ctx context.Context) ([]*domain.ScanTask, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM scan_tasks
		WHERE status IN %s
		ORDER BY created_at ASC
	`, scanTaskColumns, nonTerminalStatuses)

	return s.queryTasks(ctx, query)
}

// UpdateProgress moves a non-terminal task to PROGRESS. GREATEST keeps the
// stored progress monotonically non-decreasing even when callbacks arrive
// out of order; terminal rows are excluded by the status guard.
func (s *PostgresScanTaskStore) UpdateProgress(
	ctx context.Context,
	taskID string,
	progress int,
	message string,
) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidProgress)
	}

	query := fmt.Sprintf(`
		UPDATE scan_tasks
		SET status = 'PROGRESS',
		    progress = GREATEST(progress, $2),
		    message = $3,
		    started_at = COALESCE(started_at, $4),
		    updated_at = $4
		WHERE task_id = $1 AND status IN %s
	`, nonTerminalStatuses)

	return s.execGuarded(ctx, "update progress", query, taskID, progress, message, time.Now().UTC())
}

// MarkDone moves a non-terminal task to DONE with progress forced to 100.
func (s *PostgresScanTaskStore) MarkDone(
	ctx context.Context,
	taskID string,
	result json.RawMessage,
) error {
	query := fmt.Sprintf(`
		UPDATE scan_tasks
		SET status = 'DONE',
		    progress = 100,
		    message = 'Scan completed successfully',
		    result = $2,
		    updated_at = $3,
		    completed_at = $3,
		    actual_duration = %s
		WHERE task_id = $1 AND status IN %s
	`, actualDurationExpr("$3"), nonTerminalStatuses)

	return s.execGuarded(ctx, "mark done", query, taskID, []byte(result), time.Now().UTC())
}

// MarkFailed moves a non-terminal task to FAILURE, freezing progress.
func (s *PostgresScanTaskStore) MarkFailed(
	ctx context.Context,
	taskID string,
	errorMsg string,
) error {
	query := fmt.Sprintf(`
		UPDATE scan_tasks
		SET status = 'FAILURE',
		    message = 'Scan failed',
		    error_message = $2,
		    updated_at = $3,
		    completed_at = $3,
		    actual_duration = %s
		WHERE task_id = $1 AND status IN %s
	`, actualDurationExpr("$3"), nonTerminalStatuses)

	return s.execGuarded(ctx, "mark failed", query, taskID, errorMsg, time.Now().UTC())
}

// MarkCancelled moves a non-terminal task to CANCELLED.
func (s *PostgresScanTaskStore) MarkCancelled(ctx context.Context, taskID string) error {
	query := fmt.Sprintf(`
		UPDATE scan_tasks
		SET status = 'CANCELLED',
		    message = 'Scan cancelled',
		    updated_at = $2,
		    completed_at = $2,
		    actual_duration = %s
		WHERE task_id = $1 AND status IN %s
	`, actualDurationExpr("$2"), nonTerminalStatuses)

	return s.execGuarded(ctx, "mark cancelled", query, taskID, time.Now().UTC())
}

// actualDurationExpr computes elapsed minutes from started_at to the
// completion timestamp bound at the given placeholder, with a one-minute
// floor. NULL when the scan never left the queue. The placeholder is passed
// in because each terminal mutator binds its timestamp at a different
// position.
func actualDurationExpr(completedAtParam string) string {
	return fmt.Sprintf(`CASE
		WHEN started_at IS NOT NULL
		THEN GREATEST(1, (EXTRACT(EPOCH FROM (%s::timestamptz - started_at)) / 60))::int
		ELSE NULL
	END`, completedAtParam)
}

// FailStaleProgress marks PROGRESS tasks without a report since cutoff as
// FAILURE. PENDING rows are left alone: they are either queued in memory or
// get requeued by restart recovery.
func (s *PostgresScanTaskStore) FailStaleProgress(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		UPDATE scan_tasks
		SET status = 'FAILURE',
		    message = 'Scan failed',
		    error_message = 'scan stalled: no progress reported',
		    updated_at = $2,
		    completed_at = $2,
		    actual_duration = %s
		WHERE status = 'PROGRESS' AND updated_at < $1
	`, actualDurationExpr("$2"))

	result, err := s.db.ExecContext(ctx, query, cutoff, time.Now().UTC())
	if err != nil {
		log.Error("failed to fail stale scan tasks", "cutoff", cutoff, "error", err)
		return 0, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Delete removes a single task row. Used by admission control to undo a
// freshly created record when the job cannot be handed to the runtime.
func (s *PostgresScanTaskStore) Delete(ctx context.Context, taskID string) error {
	log := logger.FromContext(ctx)

	query := `DELETE FROM scan_tasks WHERE task_id = $1`

	if _, err := s.db.ExecContext(ctx, query, taskID); err != nil {
		log.Error("failed to delete scan task", "task_id", taskID, "error", err)
		return MapError(err)
	}

	return nil
}

// DeleteTerminalBefore deletes terminal tasks completed before the cutoff.
func (s *PostgresScanTaskStore) DeleteTerminalBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	log := logger.FromContext(ctx)

	query := `
		DELETE FROM scan_tasks
		WHERE status IN ('DONE', 'FAILURE', 'CANCELLED')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to delete old scan tasks", "cutoff", cutoff, "error", err)
		return 0, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// execGuarded executes a status-guarded mutation. Zero affected rows means
// the task is already terminal (or gone), which status reporting treats as
// a late callback and drops.
func (s *PostgresScanTaskStore) execGuarded(
	ctx context.Context,
	operation string,
	query string,
	taskID string,
	args ...any,
) error {
	log := logger.FromContext(ctx)

	allArgs := append([]any{taskID}, args...)
	result, err := s.db.ExecContext(ctx, query, allArgs...)
	if err != nil {
		log.Error("scan task mutation failed",
			"operation", operation,
			"task_id", taskID,
			"error", err)
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		log.Debug("scan task mutation matched no rows, task terminal or missing",
			"operation", operation,
			"task_id", taskID)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRow.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRow reads one scan task row into a domain struct.
func (s *PostgresScanTaskStore) scanRow(row rowScanner) (*domain.ScanTask, error) {
	var (
		task           domain.ScanTask
		result         []byte
		errorMessage   sql.NullString
		actualDuration sql.NullInt64
		startedAt      sql.NullTime
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&task.TaskID,
		&task.OwnerID,
		&task.TargetID,
		&task.ScanKind,
		&task.Window,
		&task.Status,
		&task.Progress,
		&task.Message,
		&result,
		&errorMessage,
		&task.EstimatedDuration,
		&actualDuration,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	task.Error = errorMessage.String
	if actualDuration.Valid {
		minutes := int(actualDuration.Int64)
		task.ActualDuration = &minutes
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// queryTasks runs a multi-row scan task query.
func (s *PostgresScanTaskStore) queryTasks(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.ScanTask, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query scan tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.ScanTask
	for rows.Next() {
		task, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
