// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/selflog"
)

// Error codes returned in APIError.Code. Clients branch on these
// rather than on HTTP status text.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIResponse is the envelope for every JSON endpoint.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError carries a machine-readable code plus a human-readable
// message. Details is optional structured context, never internal
// error text.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// APIMeta carries correlation and timing information.
type APIMeta struct {
	RequestID  string    `json:"requestId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs float64   `json:"durationMs"`
}

// ResponseWriter wraps the response side of one request so handlers
// can emit enveloped JSON without repeating boilerplate.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter starts the request timer. Construct one at the
// top of a handler and use it for all writes on that request.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r, startTime: time.Now()}
}

func (rw *ResponseWriter) meta() *APIMeta {
	return &APIMeta{
		RequestID:  chimiddleware.GetReqID(rw.r.Context()),
		Timestamp:  time.Now().UTC(),
		DurationMs: float64(time.Since(rw.startTime).Microseconds()) / 1000.0,
	}
}

func (rw *ResponseWriter) writeJSON(status int, resp *APIResponse) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(status)

	if err := json.NewEncoder(rw.w).Encode(resp); err != nil {
		selflog.Error().
			Err(err).
			Str("path", rw.r.URL.Path).
			Msg("failed to encode API response")
	}
}

// WriteSuccess sends a 200 envelope with the given payload.
func (rw *ResponseWriter) WriteSuccess(data any) {
	rw.WriteSuccessStatus(http.StatusOK, data)
}

// WriteSuccessStatus sends a success envelope with an explicit
// status, for 201/202 responses.
func (rw *ResponseWriter) WriteSuccessStatus(status int, data any) {
	rw.writeJSON(status, &APIResponse{
		Success: true,
		Data:    data,
		Meta:    rw.meta(),
	})
}

// WriteError sends an error envelope. Internal error detail belongs
// in server logs, not in message.
func (rw *ResponseWriter) WriteError(status int, code, message string) {
	rw.WriteErrorDetails(status, code, message, nil)
}

// WriteErrorDetails sends an error envelope with structured details,
// for validation failures that name the offending fields.
func (rw *ResponseWriter) WriteErrorDetails(status int, code, message string, details any) {
	rw.writeJSON(status, &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: rw.meta(),
	})
}

// WriteBadRequest is shorthand for a 400 with CodeBadRequest.
func (rw *ResponseWriter) WriteBadRequest(message string) {
	rw.WriteError(http.StatusBadRequest, CodeBadRequest, message)
}

// WriteNotFound is shorthand for a 404 with CodeNotFound.
func (rw *ResponseWriter) WriteNotFound(message string) {
	rw.WriteError(http.StatusNotFound, CodeNotFound, message)
}

// WriteInternalError logs err and sends a 500 with a generic
// message. The caller's error never reaches the client.
func (rw *ResponseWriter) WriteInternalError(err error) {
	if err != nil {
		selflog.Error().
			Err(err).
			Str("path", rw.r.URL.Path).
			Str("request_id", chimiddleware.GetReqID(rw.r.Context())).
			Msg("internal API error")
	}
	rw.WriteError(http.StatusInternalServerError, CodeInternalError, "An internal error occurred")
}

// WriteServiceUnavailable sends a 503, used while a dependency the
// endpoint needs is absent or shutting down.
func (rw *ResponseWriter) WriteServiceUnavailable(message string) {
	rw.WriteError(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}
