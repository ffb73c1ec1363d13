// File: /services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Domain errors. Anything a service returns that does not wrap one of these
// is a storage failure and must surface as a generic 500.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// notFound wraps ErrNotFound with the kind of resource that was missing.
func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}
