package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing or unusable credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a bearer token past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrSessionExpired indicates the session idled past the inactivity window.
	ErrSessionExpired = errors.New("session expired due to inactivity")
	// ErrForbidden indicates an authenticated caller lacking a role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrReferential indicates a delete blocked by dependent rows.
	ErrReferential = errors.New("referenced by dependent records")
	// ErrConstraint indicates a unique or catalog constraint violation.
	ErrConstraint = errors.New("constraint violation")
)

// ValidationError carries field level messages. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ValidationError as ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ForbiddenError describes which requirement a caller failed.
type ForbiddenError struct {
	RequiredPermission string
	RequiredRole       string
	CurrentRole        string
}

func (e *ForbiddenError) Error() string {
	switch {
	case e.RequiredPermission != "":
		return "forbidden: missing permission " + e.RequiredPermission
	case e.RequiredRole != "":
		return "forbidden: requires role " + e.RequiredRole
	default:
		return ErrForbidden.Error()
	}
}

// Is reports ForbiddenError as ErrForbidden.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
