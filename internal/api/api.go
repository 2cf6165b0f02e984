// Package api exposes the content-lifecycle pipeline over HTTP. Handlers are
// grouped per subsystem and each contributes a chi sub-router.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// ErrorResponse is the JSON body returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var incomplete *contentpipe.IncompleteUploadError
	switch {
	case errors.Is(err, contentpipe.ErrNotFound),
		errors.Is(err, contentpipe.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, contentpipe.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.As(err, &incomplete):
		status = http.StatusBadRequest
	case errors.Is(err, contentpipe.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, contentpipe.ErrRangeNotSatisfiable):
		status = http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, contentpipe.ErrFeatureDisabled):
		status = http.StatusForbidden
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}
