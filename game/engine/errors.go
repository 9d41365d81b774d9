package engine

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("room is full")
	ErrDuplicateSession = errors.New("session already in room")
	ErrUnknownSession   = errors.New("session not in room")
	ErrUnknownAction    = errors.New("unknown action")
)

// ValidationError reports a payload that failed a field constraint.
// It never escapes the originating session.
type ValidationError struct {
	Action string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s data: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("invalid %s data: %s %s", e.Action, e.Field, e.Reason)
}

func invalid(action, field, format string, args ...any) *ValidationError {
	return &ValidationError{Action: action, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
