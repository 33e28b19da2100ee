package intake

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown tasks and history records, and for
// records owned by someone else
var ErrNotFound = errors.New("not found")

// ErrHistoryDisabled is returned by history operations when no store is configured
var ErrHistoryDisabled = errors.New("history store is not configured")

// ValidationError indicates a rejected request. No task exists for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}
