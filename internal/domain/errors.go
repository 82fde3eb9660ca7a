// Package domain defines the error taxonomy shared by the identity, tenancy and
// worker layers. Every error carries a stable machine-readable Kind so the HTTP
// layer (and any other caller) can branch on it without string matching.
package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable class of an error.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuth           Kind = "auth"
	KindForbidden      Kind = "forbidden"
	KindInfrastructure Kind = "infrastructure"
	KindInternal       Kind = "internal"
)

// Entity names the referenced record that was missing.
type Entity string

const (
	EntityUser         Entity = "user"
	EntityOrganization Entity = "organization"
	EntityRole         Entity = "role"
	EntityMembership   Entity = "membership"
)

// Conflict and validation codes.
const (
	CodeDuplicateEmail      = "duplicate_email"
	CodeDuplicateMembership = "duplicate_membership"
	CodeDuplicateRole       = "duplicate_role"
	CodeCrossTenantRole     = "cross_tenant_role"
	CodeLastOwner           = "last_owner"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeInvalidToken        = "invalid_token"
	CodeForbidden           = "forbidden"
)

// ValidationError indicates missing or malformed input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError indicates a referenced entity is absent.
type NotFoundError struct {
	Entity  Entity
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a uniqueness rule would be broken.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// AuthError indicates bad credentials or a missing permission. The message
// never says which credential field was wrong.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// InfrastructureError wraps a store, queue or network failure. It is retryable.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e.Err == nil {
		return e.Op + ": infrastructure unavailable"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// InternalError signals a broken invariant. Reaching it is a bug.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError for entity with a formatted message.
func ErrNotFound(entity Entity, format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(code, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidCredentials is returned for an unknown email and for a wrong
// password alike.
func ErrInvalidCredentials() *AuthError {
	return &AuthError{Code: CodeInvalidCredentials, Message: "invalid credentials"}
}

// ErrForbidden creates an AuthError with the forbidden code.
func ErrForbidden(format string, args ...interface{}) *AuthError {
	return &AuthError{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// ErrInfrastructure wraps err as a retryable infrastructure failure.
func ErrInfrastructure(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

// ErrInternal creates an InternalError with a formatted message.
func ErrInternal(format string, args ...interface{}) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Context expiry counts as infrastructure: the caller
// imposed the timeout and may retry.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		authErr    *AuthError
		infra      *InfrastructureError
		internal   *InternalError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &authErr):
		if authErr.Code == CodeForbidden {
			return KindForbidden
		}
		return KindAuth
	case errors.As(err, &infra):
		return KindInfrastructure
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindInfrastructure
	case errors.As(err, &internal):
		return KindInternal
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err is a NotFoundError for entity. An empty
// entity matches any NotFoundError.
func IsNotFound(err error, entity Entity) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return entity == "" || nf.Entity == entity
}

// Detail returns the machine-readable code of err and, for a NotFoundError,
// the missing entity. Both are empty for errors that carry neither.
func Detail(err error) (code string, entity Entity) {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		authErr    *AuthError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Code, ""
	case errors.As(err, &notFound):
		return "", notFound.Entity
	case errors.As(err, &conflict):
		return conflict.Code, ""
	case errors.As(err, &authErr):
		return authErr.Code, ""
	}
	return "", ""
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}
