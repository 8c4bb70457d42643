package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	ErrInternal   = errors.New("internal error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrBadRequest = errors.New("bad request")

	// Job errors
	ErrJobNotFound    = fmt.Errorf("job %w", ErrNotFound)
	ErrNotRetryable   = errors.New("job is not retryable")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrGroupNotFound  = fmt.Errorf("group %w", ErrNotFound)
	ErrImageNotFound  = fmt.Errorf("image %w", ErrNotFound)

	// Validation errors
	ErrValidation = errors.New("validation error")
)

// SpawnError means the external worker could not be started at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start worker %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WorkerExitError means the worker ran but exited non-zero.
type WorkerExitError struct {
	Code int
}

func (e *WorkerExitError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.Code)
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
