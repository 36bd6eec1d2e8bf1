// Package apperrors carries the error taxonomy used across the control
// plane and worker runtime: sentinel kinds plus typed wrappers so
// errors.Is/errors.As compose the way callers expect.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every error surfaced by a NoETL component unwraps to
// exactly one of these so HTTP handlers and retry logic can switch on
// kind without inspecting concrete types.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient")
	ErrTimeout    = errors.New("timeout")
	ErrCrypto     = errors.New("crypto")
	ErrInternal   = errors.New("internal error")
)

// ValidationError reports a malformed document, missing field, or
// unknown reference. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RequiredError creates a validation error for a required field.
func RequiredError(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// NotFoundError reports an unknown catalog id, credential, or execution.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a not-found error for a specific resource.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a duplicate name or a second claim of a command.
// The claim path surfaces AlreadyClaimed instead, see ErrAlreadyClaimed.
type ConflictError struct {
	Resource string
	ID       string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %q: %s", e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("%s %q already exists", e.Resource, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError creates a conflict error.
func NewConflictError(resource, id, message string) error {
	return &ConflictError{Resource: resource, ID: id, Message: message}
}

// ErrAlreadyClaimed is returned by the claim protocol when a command was
// already claimed by another worker. It is not surfaced as an API error;
// callers switch on it explicitly.
var ErrAlreadyClaimed = errors.New("already claimed")

// TransientError wraps storage/bus unavailability or network timeouts
// that are retried with backoff by the caller; it is only returned once
// retries are exhausted.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// NewTransientError wraps an underlying error as transient for op.
func NewTransientError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// CryptoError reports a wrong key size or an authentication failure.
// Fatal for the individual operation; never retried.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crypto: %s", e.Op)
}

func (e *CryptoError) Unwrap() error { return ErrCrypto }

// NewCryptoError wraps an underlying error as a crypto failure for op.
func NewCryptoError(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

// InternalError reports an invariant violation, logged with the
// triggering event id and surfaced as a 500.
type InternalError struct {
	Context string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal: %s: %v", e.Context, e.Err)
	}
	return fmt.Sprintf("internal: %s", e.Context)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// NewInternalError wraps an underlying error as internal, tagged with
// the invariant or context that was violated.
func NewInternalError(context string, err error) error {
	return &InternalError{Context: context, Err: err}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a conflict failure.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsTransient reports whether err is a retried-and-exhausted failure.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsTimeout reports whether err is a tool/operation timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsCrypto reports whether err is a crypto failure.
func IsCrypto(err error) bool { return errors.Is(err, ErrCrypto) }

// IsInternal reports whether err is an internal invariant violation.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }

// RowScanner is the standard interface for database row scanning,
// compatible with *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}
