package api

import (
	"encoding/json"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
)

// SubmitScanRequest represents the request body for starting a scan
type SubmitScanRequest struct {
	TargetID string `json:"account_id"   validate:"required,uuid"`
	ScanKind string `json:"scan_type"    validate:"required,oneof=inbox groups all"`
	Window   int    `json:"scan_months"  validate:"required,gte=1,lte=12"`
}

// BulkScanRequest represents the request body for starting scans across
// multiple accounts
type BulkScanRequest struct {
	TargetIDs []string `json:"account_ids" validate:"required,min=1,dive,uuid"`
	ScanKind  string   `json:"scan_type"   validate:"required,oneof=inbox groups all"`
	Window    int      `json:"scan_months" validate:"required,gte=1,lte=12"`
}

// CleanupRequest represents the request body for a manual retention sweep
type CleanupRequest struct {
	Days int `json:"days" validate:"required,gte=1,lte=30"`
}

// CleanupResponse reports the outcome of a manual retention sweep
type CleanupResponse struct {
	Deleted int64 `json:"deleted_count"`
	Days    int   `json:"days"`
}

// ScanTaskResponse represents the response data for a scan task
type ScanTaskResponse struct {
	TaskID            string          `json:"task_id"`
	AccountID         string          `json:"account_id"`
	ScanKind          string          `json:"scan_type"`
	Window            int             `json:"scan_months"`
	Status            string          `json:"status"`
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

// taskToResponse converts a domain.ScanTask to a ScanTaskResponse
func taskToResponse(t *domain.ScanTask) ScanTaskResponse {
	return ScanTaskResponse{
		TaskID:            t.TaskID,
		AccountID:         t.TargetID.String(),
		ScanKind:          string(t.ScanKind),
		Window:            t.Window,
		Status:            string(t.Status),
		Progress:          t.Progress,
		Message:           t.Message,
		Result:            t.Result,
		Error:             t.Error,
		EstimatedDuration: t.EstimatedDuration,
		ActualDuration:    t.ActualDuration,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		StartedAt:         t.StartedAt,
		CompletedAt:       t.CompletedAt,
	}
}
