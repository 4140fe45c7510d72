package http

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync/atomic"
)

// debugMode controls whether internal error detail is written to clients.
// Enabled only in development.
var debugMode atomic.Bool

// SetDebug toggles development error bodies
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Success bool   `json:"success"`           // Always false
	Message string `json:"message"`           // Human-readable message
	Error   string `json:"error"`             // Machine-readable error code
	Details string `json:"details,omitempty"` // Optional additional context
	Stack   string `json:"stack,omitempty"`   // Development only
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	writeErrorResponse(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	resp.Success = false
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteInternalErrorWithCause writes a 500. In debug mode the cause and the
// current goroutine's stack are included.
func WriteInternalErrorWithCause(w http.ResponseWriter, message string, cause error) {
	resp := ErrorResponse{
		Error:   "internal_error",
		Message: message,
	}
	if debugMode.Load() && cause != nil {
		resp.Details = cause.Error()
		resp.Stack = string(debug.Stack())
	}
	writeErrorResponse(w, http.StatusInternalServerError, resp)
}
