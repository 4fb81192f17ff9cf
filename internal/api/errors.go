// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/assplayer/internal/api/middleware"
	"github.com/ManuGH/assplayer/internal/log"
)

// Error codes returned in the "error" field of failure bodies.
const (
	codeMissingURL     = "missing_url"
	codeMalformedInput = "malformed_input"
	codeNotFound       = "not_found"
	codeInvalidRequest = "invalid_request"
	codeInvalidReport  = "invalid_report"
	codeInternal       = "internal_error"
)

type failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure writes the uniform failure body.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	middleware.SetOutcome(r, code)
	writeJSON(w, status, failure{
		Success:   false,
		Error:     code,
		Message:   message,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
