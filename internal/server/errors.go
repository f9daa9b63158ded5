// Package server provides the HTTP API for submitting and following analyses.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/royengg/homeworkai/internal/analysis"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrUploadNotFound), errors.Is(err, analysis.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrParseTextMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
