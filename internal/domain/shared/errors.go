package shared

import "errors"

// ErrorKind classifies a DomainError so callers can tell a bad request
// from a business rejection or a caller bug without matching on codes.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindBusiness     ErrorKind = "business"
	KindIllegalState ErrorKind = "illegal_state"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a business rule violation
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindBusiness}
}

// NewValidationError creates an error for malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindValidation}
}

// NewNotFoundError creates an error for a missing resource
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindNotFound}
}

// NewIllegalStateError creates an error for an operation invoked in the wrong lifecycle state
func NewIllegalStateError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindIllegalState}
}

// NewConflictError creates an error for a concurrent modification
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindConflict}
}

// KindOf returns the kind of the first DomainError in err's chain,
// or KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		if de.Kind == "" {
			return KindBusiness
		}
		return de.Kind
	}
	return KindInternal
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewConflictError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrLockTimeout         = NewConflictError("LOCK_TIMEOUT", "Timed out waiting for a resource lock")
	ErrInvalidState        = NewIllegalStateError("INVALID_STATE", "Operation not allowed in current state")
)
