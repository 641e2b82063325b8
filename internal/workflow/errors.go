package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("workflow: validation failed")
	// ErrRunInProgress is returned when a run is started while another is
	// still stepping.
	ErrRunInProgress = errors.New("workflow: a run is already in progress")
	// ErrNotResumable is returned by Continue when there is nothing to continue.
	ErrNotResumable = errors.New("workflow: run is not resumable")
)

// ValidationError reports a malformed workflow or step.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
