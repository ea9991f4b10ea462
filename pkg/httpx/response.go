// Package httpx provides the JSON response envelope and HTTP error types
// shared by all API handlers.
package httpx

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// JSON writes data wrapped in the response envelope with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Data: data})
}

// JSONWithMeta writes data plus metadata (pagination cursors, counts)
// wrapped in the response envelope.
func JSONWithMeta(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Response{Data: data, Meta: meta})
}

// Error writes an error response. HTTPError values control the status code
// and error key; anything else becomes a generic 500.
func Error(w http.ResponseWriter, err error) {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternalServerError
	}

	detail := &ErrorDetail{Code: httpErr.Key}
	// Surface the wrapping message for client errors only; 5xx details stay
	// in the logs.
	if httpErr.Code < http.StatusInternalServerError && err.Error() != httpErr.Key {
		detail.Message = err.Error()
	}

	writeJSON(w, httpErr.Code, Response{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Headers are already written; nothing sensible left to do.
		return
	}
}
