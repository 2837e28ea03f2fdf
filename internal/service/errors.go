package service

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the scan service
var (
	// ErrTaskNotFound indicates that the task does not exist or is not
	// visible to the requesting owner.
	ErrTaskNotFound = errors.New("scan task not found")

	// ErrDispatchFailed indicates the job could not be handed to the
	// runtime; nothing durable was created.
	ErrDispatchFailed = errors.New("failed to dispatch scan job")

	// ErrNoTargets indicates a bulk submission without any targets.
	ErrNoTargets = errors.New("bulk scan requires at least one target")

	// ErrInvalidRetention indicates a manual cleanup window outside the
	// accepted 1-30 day range.
	ErrInvalidRetention = errors.New("retention must be between 1 and 30 days")
)

// ScanServiceError wraps errors from the scan service with context.
type ScanServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "cancel")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ScanServiceError.
func (e *ScanServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("scan service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ScanServiceError) Unwrap() error {
	return e.Err
}

// newScanServiceError wraps err with operation context, passing known
// sentinel errors through unchanged so callers can match on them.
func newScanServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrDispatchFailed) ||
		errors.Is(err, ErrNoTargets) ||
		errors.Is(err, ErrInvalidRetention) {
		return err
	}

	return &ScanServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
