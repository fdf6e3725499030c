// Package shared contains common domain types, errors, events, and value
// objects used across all domain packages. This package has zero external
// dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Validation errors - rejected at the invocation boundary, before any
	// remote session is opened.
	ErrValidation    = errors.New("validation error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFormat = errors.New("invalid format")
	ErrEmptyValue    = errors.New("value cannot be empty")

	// Fatal pre-submission errors - abort the run before any student is
	// touched.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNoAssessmentsFound   = errors.New("no assessments registered for classroom")
	ErrPeriodUnavailable    = errors.New("reference period not offered by session")

	// Recoverable per-step errors - bounded retry, then the current
	// student is demoted.
	ErrSessionTimeout = errors.New("session did not reach a readable state")
	ErrStepTimeout    = errors.New("step exceeded bounded wait")

	// Per-student business errors - skip the student, continue the batch.
	ErrStudentNotListed = errors.New("student not present in listing")

	// Concurrency errors.
	ErrRunInProgress = errors.New("a run is already in progress for this classroom")

	// Cancellation.
	ErrRunCancelled = errors.New("run cancelled by caller")

	// External service errors.
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")

	// Entity errors.
	ErrNotFound = errors.New("entity not found")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "collector", "orchestrator", "session"
	Op      string // Operation that failed, e.g., "Authenticate", "SaveStudent"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IsFatal reports whether the error aborts the whole run before any student
// is touched.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrNoAssessmentsFound) ||
		errors.Is(err, ErrPeriodUnavailable)
}

// IsRecoverableStep reports whether the error is a bounded-wait timeout the
// orchestrator may retry before demoting the current student.
func IsRecoverableStep(err error) bool {
	return errors.Is(err, ErrStepTimeout) || errors.Is(err, ErrSessionTimeout)
}

// IsValidation checks if the error is a boundary validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrEmptyValue)
}

// Classify returns the classification string carried by terminal outcomes.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrNoAssessmentsFound):
		return "no_assessments_found"
	case errors.Is(err, ErrPeriodUnavailable):
		return "period_unavailable"
	case errors.Is(err, ErrRunCancelled):
		return "cancelled"
	case errors.Is(err, ErrRunInProgress):
		return "run_in_progress"
	case errors.Is(err, ErrSessionTimeout), errors.Is(err, ErrStepTimeout):
		return "session_timeout"
	case IsValidation(err):
		return "validation_error"
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrExternalService):
		return "external_service_error"
	default:
		return "internal_error"
	}
}
