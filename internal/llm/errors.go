package llm

import (
	"fmt"

	"github.com/jonathan/resume-intake/internal/tasks"
)

// OracleError reports a failed or empty oracle call
type OracleError struct {
	Mode    tasks.Strategy
	Message string
	Cause   error
}

func (e *OracleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s oracle call failed: %s: %v", e.Mode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s oracle call failed: %s", e.Mode, e.Message)
}

func (e *OracleError) Unwrap() error {
	return e.Cause
}
