package services

import (
	"errors"
	"fmt"

	"github.com/reverside/timetracker/internal/store"
)

var (
	// ErrValidation is the class of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("service unavailable")

	// ErrInvalidState is returned when a transition is not allowed from the
	// current status.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrAlreadyProcessed is returned when the timesheet already left the
	// status the operation requires.
	ErrAlreadyProcessed = fmt.Errorf("timesheet has already been processed: %w", ErrInvalidState)
)

// ValidationError reports malformed input. Nothing is persisted when one is
// returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrEmptyTimesheet is returned when submitting a timesheet without entries.
var ErrEmptyTimesheet = &ValidationError{Field: "entries", Reason: "cannot submit empty timesheet"}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func isServiceError(err error) bool {
	for _, target := range []error{ErrValidation, ErrConflict, ErrForbidden, ErrNotFound, ErrUnavailable, ErrInvalidState} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// translate maps store sentinels onto the service taxonomy. Errors already in
// the taxonomy pass through; anything else is wrapped with op.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isServiceError(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
