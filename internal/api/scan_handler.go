package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/PPS-H/Invoice-manager-backend/internal/api/shared"
	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ScanHandler handles scan task HTTP requests
type ScanHandler struct {
	scanService service.ScanService
	sweeper     *service.RetentionSweeper
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(
	scanService service.ScanService,
	sweeper *service.RetentionSweeper,
	logger *slog.Logger,
) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		sweeper:     sweeper,
		validator:   validator.New(),
		logger:      logger,
	}
}

// SubmitScan handles POST /api/scans requests
func (h *ScanHandler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req SubmitScanRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	// Validated by the uuid and oneof tags above
	targetID := uuid.MustParse(req.TargetID)
	kind := domain.ScanKind(req.ScanKind)

	result, err := h.scanService.Submit(r.Context(), userID, targetID, kind, req.Window)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// Processing happens asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, result)
}

// SubmitBulkScan handles POST /api/scans/bulk requests
func (h *ScanHandler) SubmitBulkScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req BulkScanRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	targetIDs := make([]uuid.UUID, len(req.TargetIDs))
	for i, raw := range req.TargetIDs {
		targetIDs[i] = uuid.MustParse(raw)
	}
	kind := domain.ScanKind(req.ScanKind)

	result, err := h.scanService.SubmitBulk(r.Context(), userID, targetIDs, kind, req.Window)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, result)
}

// GetScanStatus handles GET /api/scans/{taskID} requests
func (h *ScanHandler) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	task, err := h.scanService.Status(r.Context(), userID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// CancelScan handles POST /api/scans/{taskID}/cancel requests
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	task, err := h.scanService.Cancel(r.Context(), userID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// Already terminal tasks keep their state; the response reflects what
	// the row actually is.
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"task_id": taskID,
		"status":  string(task.Status),
		"message": task.Message,
	})
}

// ListScans handles GET /api/scans requests
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	tasks, err := h.scanService.ListTasks(r.Context(), userID, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]ScanTaskResponse, len(tasks))
	for i, t := range tasks {
		responses[i] = taskToResponse(t)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// CleanupScans handles POST /api/admin/scans/cleanup requests.
// Requires the admin claim, enforced by the RequireAdmin middleware.
func (h *ScanHandler) CleanupScans(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	deleted, err := h.sweeper.CleanupTasks(r.Context(), req.Days)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("manual cleanup completed", "deleted", deleted, "days", req.Days)

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{
		Deleted: deleted,
		Days:    req.Days,
	})
}

// getUserIDFromContext extracts the authenticated user's UUID from the
// request context, where the authentication middleware placed it.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}
