package web

// errors.go writes JSON responses for the status API.
//
// Errors are logged server-side with the request id and returned to the client
// as a short message plus a machine-readable code. Store errors never leak
// their SQL detail.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/DBImport/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// respondJSON encodes v with the given status.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("encode response", "path", r.URL.Path, "error", err)
	}
}

// respondError logs err and writes an ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	code, msg := classify(err, status)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	respondJSON(w, r, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// classify maps an error onto a stable code and a client-safe message.
func classify(err error, status int) (code, msg string) {
	switch {
	case errors.Is(err, errNoRun):
		return "NO_RUN", err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "TIMEOUT", "the store did not answer in time"
	case status >= http.StatusInternalServerError:
		return "STORE_UNAVAILABLE", "the store could not be queried"
	default:
		return "BAD_REQUEST", err.Error()
	}
}
