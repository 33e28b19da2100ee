package pipeline

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned by Enqueue when no slot is free
var ErrQueueFull = errors.New("processing queue is full")

// ErrQueueClosed is returned by Enqueue after Shutdown
var ErrQueueClosed = errors.New("processing queue is shut down")

// PersistenceError wraps a failed history write. It is logged and never
// changes the outcome of the task.
type PersistenceError struct {
	TaskID string
	Cause  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist history for task %s: %v", e.TaskID, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
