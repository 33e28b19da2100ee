package extract

import (
	"fmt"

	"github.com/jonathan/resume-intake/internal/tasks"
)

// ExtractionError reports a failure to obtain content in the given mode
type ExtractionError struct {
	Mode    tasks.Strategy
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s extraction failed: %s: %v", e.Mode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s extraction failed: %s", e.Mode, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
