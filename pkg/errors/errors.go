package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a stream, override or resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrAuthRejected is returned when the remote rejects our credentials.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrInvalidInput is returned when command input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionFault is returned for transient transport failures.
	ErrConnectionFault = errors.New("connection fault")

	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("closed")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// ValidationError represents bad CRUD or command input. Never retried.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// NotFoundError represents a stale or unknown id.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{
			code:    CodeNotFound,
			message: fmt.Sprintf("%s not found", resource),
		},
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// AuthRejectedError means the remote refused our credentials. It is
// non-retryable: the user has to re-authenticate out of band.
type AuthRejectedError struct {
	*BaseError
	StatusCode int
}

// NewAuthRejectedError creates a new auth rejected error.
func NewAuthRejectedError(message string, statusCode int) *AuthRejectedError {
	if message == "" {
		message = "authentication rejected"
	}
	return &AuthRejectedError{
		BaseError: &BaseError{
			code:    CodeAuthRejected,
			message: message,
		},
		StatusCode: statusCode,
	}
}

// ConnectionFaultError represents a transient transport failure: dial errors,
// unexpected close, missed heartbeats, 5xx responses.
type ConnectionFaultError struct {
	*BaseError
	Operation string
}

// NewConnectionFaultError creates a new connection fault.
func NewConnectionFaultError(operation string, cause error) *ConnectionFaultError {
	message := "connection fault"
	if operation != "" {
		message = fmt.Sprintf("%s failed", operation)
	}
	return &ConnectionFaultError{
		BaseError: &BaseError{
			code:    CodeConnectionFault,
			message: message,
			cause:   cause,
		},
		Operation: operation,
	}
}

// ProtocolError represents a malformed frame on the streaming channel.
type ProtocolError struct {
	*BaseError
	Frame string
}

// maxFrameExcerpt bounds how much of a bad frame is kept on the error.
const maxFrameExcerpt = 120

// NewProtocolError creates a new protocol error. The frame is truncated.
func NewProtocolError(message string, frame []byte, cause error) *ProtocolError {
	excerpt := string(frame)
	if len(excerpt) > maxFrameExcerpt {
		excerpt = excerpt[:maxFrameExcerpt] + "..."
	}
	return &ProtocolError{
		BaseError: &BaseError{
			code:    CodeProtocol,
			message: message,
			cause:   cause,
		},
		Frame: excerpt,
	}
}

// IOError represents a failed export. Path is the attempted destination.
type IOError struct {
	*BaseError
	Path string
	Op   string
}

// NewIOError creates a new IO error.
func NewIOError(op, path string, cause error) *IOError {
	return &IOError{
		BaseError: &BaseError{
			code:    CodeIO,
			message: fmt.Sprintf("%s %s", op, path),
			cause:   cause,
		},
		Path: path,
		Op:   op,
	}
}

// InternalError represents an unexpected failure.
type InternalError struct {
	*BaseError
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *InternalError {
	if message == "" {
		message = "internal error"
	}
	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   cause,
		},
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise, it creates an InternalError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
		}
	}

	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   err,
		},
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
	}
}
