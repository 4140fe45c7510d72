package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInternalServer     = errors.New("internal server error")

	// Token errors
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
