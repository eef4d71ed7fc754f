// Package errors provides the JSON error envelope used by the HTTP surface
// and the mapping from domain errors to HTTP status codes.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skycrane/skycrane/pkg/catalog"
	"github.com/skycrane/skycrane/pkg/deploy"
	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// HTTPErrorResponse is the envelope every error response carries:
//
//	{"error": {"code": "NOT_FOUND", "message": "..."}}
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

type HTTPErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes used by the HTTP surface.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
)

// WriteError writes the JSON error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorBody{Code: code, Message: message},
	})
}

// RespondWithError maps a domain error to a status and code, then writes it.
func RespondWithError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	WriteError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case jobs.IsNotFound(err),
		statestore.IsServerNotFound(err),
		errors.Is(err, catalog.ErrAppNotFound):
		return http.StatusNotFound, CodeNotFound
	case jobs.IsUnknownJobType(err),
		deploy.IsDependencyResolution(err):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
