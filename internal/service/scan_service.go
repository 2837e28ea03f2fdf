package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/task"
	"github.com/google/uuid"
)

// Submission outcome values returned to callers.
const (
	// SubmitStatusStarted indicates a new scan task was created.
	SubmitStatusStarted = "started"

	// SubmitStatusAlreadyRunning indicates an active task for the same
	// owner/target pair was returned instead of creating a duplicate.
	SubmitStatusAlreadyRunning = "already_running"
)

// Default number of tasks returned by ListTasks when the caller does not
// specify a limit.
const defaultListLimit = 10

// SubmitResult is the outcome of a single scan submission.
type SubmitResult struct {
	TaskID            string `json:"task_id"`
	Status            string `json:"status"`
	EstimatedDuration int    `json:"estimated_duration"`
	Message           string `json:"message"`
}

// BulkSubmitResult is the outcome of a bulk scan submission.
type BulkSubmitResult struct {
	BatchID           string         `json:"batch_id"`
	AccountCount      int            `json:"account_count"`
	EstimatedDuration int            `json:"estimated_duration"`
	Tasks             []SubmitResult `json:"tasks"`
}

// JobDispatcher is the slice of the job runtime the scan service needs.
type JobDispatcher interface {
	// Enqueue hands a job to the runtime, returning its job ID.
	Enqueue(job task.Job) (string, error)

	// Revoke requests best-effort cancellation of a job.
	Revoke(jobID string)
}

// JobFactory builds scan jobs for submissions.
type JobFactory interface {
	// NewScanJob creates a job for a fresh submission.
	NewScanJob(ownerID, targetID uuid.UUID, kind domain.ScanKind, window int) (task.Job, error)
}

// ScanService coordinates scan submissions, queries, and cancellation for
// the HTTP layer.
type ScanService interface {
	// Submit runs admission control for one owner/target pair: it returns
	// the existing active task if there is one, otherwise dispatches a new
	// scan job and creates its record.
	Submit(ctx context.Context, ownerID, targetID uuid.UUID, kind domain.ScanKind, window int) (*SubmitResult, error)

	// SubmitBulk fans out one submission per target, preserving per-target
	// de-duplication.
	SubmitBulk(ctx context.Context, ownerID uuid.UUID, targetIDs []uuid.UUID, kind domain.ScanKind, window int) (*BulkSubmitResult, error)

	// Status returns the owner's view of a task.
	Status(ctx context.Context, ownerID uuid.UUID, taskID string) (*domain.ScanTask, error)

	// Cancel marks the task cancelled immediately and forwards revocation
	// to the runtime best-effort. It returns the task's resulting state,
	// which stays terminal when the task had already finished.
	Cancel(ctx context.Context, ownerID uuid.UUID, taskID string) (*domain.ScanTask, error)

	// ListTasks returns the owner's tasks, newest first.
	ListTasks(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.ScanTask, error)
}

// scanServiceStore is the subset of store.ScanTaskStore the service uses.
// Declared here so tests can substitute a focused mock.
type scanServiceStore interface {
	CreateIfAbsent(ctx context.Context, t *domain.ScanTask) (*domain.ScanTask, bool, error)
	GetByTaskID(ctx context.Context, taskID string) (*domain.ScanTask, error)
	FindActive(ctx context.Context, ownerID, targetID uuid.UUID) (*domain.ScanTask, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.ScanTask, error)
	MarkCancelled(ctx context.Context, taskID string) error
	Delete(ctx context.Context, taskID string) error
}

// scanServiceImpl implements the ScanService interface.
type scanServiceImpl struct {
	store      scanServiceStore
	dispatcher JobDispatcher
	jobs       JobFactory
	logger     *slog.Logger
}

// NewScanService creates a ScanService with the given collaborators.
// Ownership of the target by the owner is a precondition enforced by the
// account-linking layer before calls reach this service; the ids are
// trusted as given.
func NewScanService(
	scanTaskStore scanServiceStore,
	dispatcher JobDispatcher,
	jobs JobFactory,
	logger *slog.Logger,
) (ScanService, error) {
	if scanTaskStore == nil {
		return nil, fmt.Errorf("scan task store cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job factory cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &scanServiceImpl{
		store:      scanTaskStore,
		dispatcher: dispatcher,
		jobs:       jobs,
		logger:     logger,
	}, nil
}

// Submit implements admission control for scan submissions.
func (s *scanServiceImpl) Submit(
	ctx context.Context,
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
) (*SubmitResult, error) {
	if ownerID == uuid.Nil {
		return nil, newScanServiceError("submit", "invalid owner", domain.ErrEmptyOwnerID)
	}
	if targetID == uuid.Nil {
		return nil, newScanServiceError("submit", "invalid target", domain.ErrEmptyTargetID)
	}
	if !domain.IsValidScanKind(kind) {
		return nil, newScanServiceError("submit", "invalid scan kind", domain.ErrInvalidScanKind)
	}
	if window < domain.MinScanWindow || window > domain.MaxScanWindow {
		return nil, newScanServiceError("submit", "invalid window", domain.ErrInvalidScanWindow)
	}

	// Fast path: an active task for this pair short-circuits before any
	// dispatch. The insert below still guards against races.
	existing, err := s.store.FindActive(ctx, ownerID, targetID)
	if err != nil {
		return nil, newScanServiceError("submit", "failed to check active tasks", err)
	}
	if existing != nil {
		return s.alreadyRunning(existing), nil
	}

	job, err := s.jobs.NewScanJob(ownerID, targetID, kind, window)
	if err != nil {
		return nil, newScanServiceError("submit", "failed to build scan job", err)
	}

	t, err := domain.NewScanTask(job.ID(), ownerID, targetID, kind, window,
		EstimateDuration(window, kind))
	if err != nil {
		return nil, newScanServiceError("submit", "failed to build task record", err)
	}

	// The row must exist before the job can run: workers report through the
	// guarded mutators, which drop updates for unknown task IDs. Persisting
	// first means even an instantly completing job finds its row.
	winner, created, err := s.store.CreateIfAbsent(ctx, t)
	if err != nil {
		return nil, newScanServiceError("submit", "failed to persist task", err)
	}

	if !created {
		// Lost the admission race; nothing was dispatched for our job, so
		// hand back the winner and walk away.
		s.logger.Debug("admission race lost, returning existing task",
			"owner_id", ownerID,
			"target_id", targetID,
			"winner_task_id", winner.TaskID)
		return s.alreadyRunning(winner), nil
	}

	if _, err := s.dispatcher.Enqueue(job); err != nil {
		// Dispatch failure leaves nothing durable behind.
		if delErr := s.store.Delete(ctx, t.TaskID); delErr != nil {
			s.logger.Error("failed to remove task after dispatch failure",
				"task_id", t.TaskID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	s.logger.Info("scan task started",
		"task_id", t.TaskID,
		"owner_id", ownerID,
		"target_id", targetID,
		"scan_kind", kind,
		"window", window)

	return &SubmitResult{
		TaskID:            t.TaskID,
		Status:            SubmitStatusStarted,
		EstimatedDuration: t.EstimatedDuration,
		Message:           fmt.Sprintf("Email scan started for %d month(s)", window),
	}, nil
}

// alreadyRunning builds the admission-conflict result for an active task.
// A second submission for an active pair is not an error.
func (s *scanServiceImpl) alreadyRunning(t *domain.ScanTask) *SubmitResult {
	return &SubmitResult{
		TaskID:            t.TaskID,
		Status:            SubmitStatusAlreadyRunning,
		EstimatedDuration: effectiveEstimate(t),
		Message:           "Email scan already in progress for this account",
	}
}

// SubmitBulk fans out one admission-controlled submission per target.
func (s *scanServiceImpl) SubmitBulk(
	ctx context.Context,
	ownerID uuid.UUID,
	targetIDs []uuid.UUID,
	kind domain.ScanKind,
	window int,
) (*BulkSubmitResult, error) {
	if len(targetIDs) == 0 {
		return nil, ErrNoTargets
	}

	results := make([]SubmitResult, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		result, err := s.Submit(ctx, ownerID, targetID, kind, window)
		if err != nil {
			return nil, newScanServiceError("submit_bulk",
				fmt.Sprintf("submission failed for target %s", targetID), err)
		}
		results = append(results, *result)
	}

	batch := &BulkSubmitResult{
		BatchID:           uuid.New().String(),
		AccountCount:      len(targetIDs),
		EstimatedDuration: EstimateDuration(window, kind) * len(targetIDs),
		Tasks:             results,
	}

	s.logger.Info("bulk scan dispatched",
		"batch_id", batch.BatchID,
		"owner_id", ownerID,
		"account_count", batch.AccountCount)

	return batch, nil
}

// Status returns the owner's view of a task.
func (s *scanServiceImpl) Status(
	ctx context.Context,
	ownerID uuid.UUID,
	taskID string,
) (*domain.ScanTask, error) {
	t, err := s.getOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	// Stored estimates can be invalid (legacy rows, manual edits); repair
	// silently so every response carries a positive estimate.
	t.EstimatedDuration = effectiveEstimate(t)

	return t, nil
}

// Cancel marks the task cancelled immediately so the owner's admission slot
// frees promptly, then forwards revocation to the runtime best-effort.
// Cancelling an already terminal task is a no-op.
func (s *scanServiceImpl) Cancel(
	ctx context.Context,
	ownerID uuid.UUID,
	taskID string,
) (*domain.ScanTask, error) {
	t, err := s.getOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkCancelled(ctx, taskID); err != nil {
		return nil, newScanServiceError("cancel", "failed to mark task cancelled", err)
	}

	if !t.Status.IsTerminal() {
		s.dispatcher.Revoke(taskID)
	}

	// The guarded update is a no-op on terminal rows; re-read so the caller
	// sees the state the task actually ended up in.
	updated, err := s.store.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, newScanServiceError("cancel", "failed to reload task", err)
	}

	s.logger.Info("scan task cancel processed",
		"task_id", taskID,
		"owner_id", ownerID,
		"status", updated.Status)
	return updated, nil
}

// ListTasks returns the owner's tasks, newest first.
func (s *scanServiceImpl) ListTasks(
	ctx context.Context,
	ownerID uuid.UUID,
	limit int,
) ([]*domain.ScanTask, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	tasks, err := s.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, newScanServiceError("list_tasks", "failed to list tasks", err)
	}

	for _, t := range tasks {
		t.EstimatedDuration = effectiveEstimate(t)
	}

	return tasks, nil
}

// getOwned fetches a task and verifies the requesting owner can see it.
// Tasks belonging to other owners are reported as not found rather than
// forbidden, so task IDs don't leak across principals.
func (s *scanServiceImpl) getOwned(
	ctx context.Context,
	ownerID uuid.UUID,
	taskID string,
) (*domain.ScanTask, error) {
	t, err := s.store.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, ErrTaskNotFound
	}

	if t.OwnerID != ownerID {
		return nil, ErrTaskNotFound
	}

	return t, nil
}
