package convert

import "fmt"

// ConversionError reports a single converter backend that failed
type ConversionError struct {
	Backend string
	Stderr  string
	Cause   error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s conversion failed", e.Backend)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Stderr != "" {
		msg += " (" + truncate(e.Stderr, 512) + ")"
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}
