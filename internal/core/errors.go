package core

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned by ComputeTotals when a balance line carries a
// category that is neither Asset nor Liability.
var ErrUnknownCategory = errors.New("unknown account category")

// ValidationError reports a missing or malformed request field. It maps to a
// 4xx response with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a reference to a nonexistent store, account, snapshot,
// or wizard session.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Ref)
}

func NewNotFoundError(resource string, ref any) *NotFoundError {
	return &NotFoundError{Resource: resource, Ref: fmt.Sprint(ref)}
}

// ConflictError reports an operation blocked by existing references, such as
// deleting an account type still used by accounts.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// PersistenceError wraps an underlying store failure. Handlers surface it as a
// generic 500 without leaking the wrapped error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
