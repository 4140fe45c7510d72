package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/observability"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
)

// Client-facing messages shared by several endpoints
const (
	msgInvalidBody        = "Invalid request body"
	msgInvalidCredentials = "Invalid email or password"
	msgDuplicateEmail     = "An account with this email already exists"
	msgInternal           = "Internal server error"
)

// writeServiceError maps a service error to the uniform error body.
// Anything unclassified is a 500, logged and reported with its cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		pkghttp.WriteBadRequest(w, vErr.Error())
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrDuplicateEmail):
		pkghttp.WriteConflict(w, msgDuplicateEmail)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, msgInvalidCredentials)
	case errors.Is(err, models.ErrUnauthenticated):
		pkghttp.WriteUnauthorized(w, "Please login to access this resource")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "You do not have permission to perform this action")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		observability.CaptureError(err)
		pkghttp.WriteInternalErrorWithCause(w, msgInternal, err)
	}
}

// writeDecodeError answers a body that could not be decoded
func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return
	}
	pkghttp.WriteBadRequest(w, msgInvalidBody)
}
