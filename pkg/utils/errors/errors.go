package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error
type ErrorType uint

const (
	// ErrorTypeUnknown represents an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeInvalidArgument represents bad caller input (loan book, scenario, query)
	ErrorTypeInvalidArgument
	// ErrorTypeNotFound represents a missing loan book or record
	ErrorTypeNotFound
	// ErrorTypeAlreadyExists represents a duplicate loan book
	ErrorTypeAlreadyExists
	// ErrorTypeUnavailable represents a downstream dependency that cannot be reached
	ErrorTypeUnavailable
	// ErrorTypeInternal represents an internal failure
	ErrorTypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeInvalidArgument:
		return "invalid_argument"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeAlreadyExists:
		return "already_exists"
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// AppError is an error carrying an ErrorType
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an untyped error
func New(message string) error {
	return &AppError{Type: ErrorTypeUnknown, Message: message}
}

// Newf creates an untyped error from a format string
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}

// Wrap wraps err with a message, keeping the type of the innermost AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: TypeOf(err), Message: message, Err: err}
}

// Wrapf wraps err with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// TypeOf returns the type of the first AppError in err's chain
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// Is reports whether err or any of the errors in its chain is target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// InvalidArgument creates a new InvalidArgument error
func InvalidArgument(message string) error {
	return &AppError{Type: ErrorTypeInvalidArgument, Message: message}
}

// InvalidArgumentf creates a new InvalidArgument error from a format string
func InvalidArgumentf(format string, args ...interface{}) error {
	return InvalidArgument(fmt.Sprintf(format, args...))
}

// NotFound creates a new NotFound error
func NotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// AlreadyExists creates a new AlreadyExists error
func AlreadyExists(message string) error {
	return &AppError{Type: ErrorTypeAlreadyExists, Message: message}
}

// Unavailable creates a new Unavailable error
func Unavailable(message string) error {
	return &AppError{Type: ErrorTypeUnavailable, Message: message}
}

// Internal wraps err as an Internal error
func Internal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}
