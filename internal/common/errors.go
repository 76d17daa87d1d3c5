// Package common defines shared constants and errors used across
// HealthVault server layers. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Domain error classes. Typed errors below unwrap to one of these.
	ErrValidation          = errors.New("validation error")
	ErrNotFoundOrForbidden = errors.New("not found or access denied")
	ErrConflict            = errors.New("conflict")
	ErrFatal               = errors.New("fatal inconsistency")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a uniqueness violation (duplicate email, duplicate share).
type ConflictError struct {
	Reason string
}

func NewConflictError(reason string) *ConflictError {
	return &ConflictError{Reason: reason}
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// FatalError marks a violated post-condition between file storage and
// metadata, e.g. the backing file was removed but the row delete failed.
// It must be reconciled by an operator.
type FatalError struct {
	Op  string
	Ref string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s (ref=%s): %v", ErrFatal, e.Op, e.Ref, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{ErrFatal, e.Err} }
