package service

import (
	"fmt"

	"bookings/internal/models"
)

// ErrorCodeSlotUnavailable is the error value reported with suggestions.
const ErrorCodeSlotUnavailable = "slot_unavailable"

// ValidationError is a malformed or unresolvable request. It is returned
// before any calendar call is made and is never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError is the expected outcome when the proposed interval is taken.
type ConflictError struct {
	Suggestions []models.Suggestion
}

func (e *ConflictError) Error() string {
	return ErrorCodeSlotUnavailable
}

// CommitError means the calendar write failed after a successful check.
// It is not retried: a retry would have to repeat the check.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("create calendar event: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
