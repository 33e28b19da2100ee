// Package server provides the HTTP API of the resume intake service.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/pipeline"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		verr   *intake.ValidationError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, intake.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, pipeline.ErrQueueClosed),
		errors.Is(err, intake.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
