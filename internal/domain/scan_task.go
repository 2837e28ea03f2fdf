package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the externally visible state of a scan task.
// The job runtime's native state names never appear here; translation
// happens at a single boundary in the service layer.
type TaskStatus string

// Possible scan task status values
const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusProgress  TaskStatus = "PROGRESS"
	TaskStatusDone      TaskStatus = "DONE"
	TaskStatusFailure   TaskStatus = "FAILURE"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailure, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ScanKind selects which mailbox surfaces a scan covers.
type ScanKind string

// Possible scan kind values
const (
	ScanKindInbox  ScanKind = "inbox"
	ScanKindGroups ScanKind = "groups"
	ScanKindAll    ScanKind = "all"
)

// Window bounds, in months of mail history.
const (
	MinScanWindow = 1
	MaxScanWindow = 12
)

// Common validation errors for ScanTask
var (
	ErrEmptyTaskID       = errors.New("scan task ID cannot be empty")
	ErrEmptyOwnerID      = errors.New("scan task owner ID cannot be empty")
	ErrEmptyTargetID     = errors.New("scan task target ID cannot be empty")
	ErrInvalidScanKind   = errors.New("invalid scan kind")
	ErrInvalidScanWindow = errors.New("scan window must be between 1 and 12 months")
	ErrInvalidTaskStatus = errors.New("invalid scan task status")
	ErrInvalidProgress   = errors.New("progress must be between 0 and 100")
)

// ScanTask is one durable record per submitted scan job. It is created by
// admission control, mutated only through status reporting, and deleted by
// the retention sweeper once terminal and past the retention window.
type ScanTask struct {
	TaskID            string          `json:"task_id"`
	OwnerID           uuid.UUID       `json:"owner_id"`
	TargetID          uuid.UUID       `json:"target_id"`
	ScanKind          ScanKind        `json:"scan_kind"`
	Window            int             `json:"window"`
	Status            TaskStatus      `json:"status"`
	Progress          int             `json:"progress"`
	Message           string          `json:"message"`
	Result            json.RawMessage `json:"result,omitempty"`
	Error             string          `json:"error,omitempty"`
	EstimatedDuration int             `json:"estimated_duration"`
	ActualDuration    *int            `json:"actual_duration,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// NewScanTask creates a new ScanTask in the pending state with the given
// runtime job ID, owner, target, and scan parameters.
// Returns an error if validation fails.
func NewScanTask(
	taskID string,
	ownerID uuid.UUID,
	targetID uuid.UUID,
	kind ScanKind,
	window int,
	estimatedDuration int,
) (*ScanTask, error) {
	now := time.Now().UTC()
	t := &ScanTask{
		TaskID:            taskID,
		OwnerID:           ownerID,
		TargetID:          targetID,
		ScanKind:          kind,
		Window:            window,
		Status:            TaskStatusPending,
		Progress:          0,
		Message:           "Task queued",
		EstimatedDuration: estimatedDuration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the ScanTask has valid data.
// Returns an error if any field fails validation.
func (t *ScanTask) Validate() error {
	if t.TaskID == "" {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyOwnerID
	}

	if t.TargetID == uuid.Nil {
		return ErrEmptyTargetID
	}

	if !IsValidScanKind(t.ScanKind) {
		return ErrInvalidScanKind
	}

	if t.Window < MinScanWindow || t.Window > MaxScanWindow {
		return ErrInvalidScanWindow
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// ParseScanKind converts a string into a ScanKind.
// Returns ErrInvalidScanKind for unknown values.
func ParseScanKind(s string) (ScanKind, error) {
	kind := ScanKind(s)
	if !IsValidScanKind(kind) {
		return "", ErrInvalidScanKind
	}
	return kind, nil
}

// IsValidScanKind checks if the given kind is a known ScanKind.
func IsValidScanKind(kind ScanKind) bool {
	switch kind {
	case ScanKindInbox, ScanKindGroups, ScanKindAll:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProgress, TaskStatusDone,
		TaskStatusFailure, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
