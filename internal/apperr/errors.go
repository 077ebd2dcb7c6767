// Package apperr holds the error classes shared across the retrieval pipeline.
// Component errors wrap one of these sentinels so handlers can classify them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput marks malformed or unreachable URLs and empty content. Not retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable marks embedding or vector store failures. Surfaced as a server fault.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// HTTPStatus maps an error to the status code used by the HTTP layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
