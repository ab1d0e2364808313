// Package errors provides standardized error handling for the jsonrender
// runtime. It includes error classification, standard error variables, and
// helper functions for consistent error wrapping across the system.
//
// The taxonomy follows one rule: only catalog definition errors are fatal,
// because they indicate a programming error in the host application. Every
// error caused by generated content is local to one element, one dispatch or
// one field, and degrades that unit without affecting its siblings.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	// (transport reconnects, remote validator timeouts).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors caused by invalid generated content or
	// caller input. Invalid errors are always local and non-fatal.
	ErrorInvalid
	// ErrorFatal represents unrecoverable host programming errors that should
	// abort setup.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Catalog definition errors (fatal, setup-time).
	ErrSchemaDefinition = errors.New("catalog definition invalid")
	ErrDuplicateName    = errors.New("name already defined")

	// Element validation errors (invalid, per-element).
	ErrUnknownComponent   = errors.New("component type not in catalog")
	ErrPropSchema         = errors.New("props do not match component schema")
	ErrChildrenNotAllowed = errors.New("component does not allow children")
	ErrElementKeyMissing  = errors.New("element key is empty")

	// Dispatch errors (invalid, reported to caller, no partial side effects).
	ErrUnknownAction   = errors.New("action not in catalog")
	ErrHandlerNotFound = errors.New("no handler registered for action")

	// Data store errors.
	ErrInvalidPath = errors.New("invalid data path")

	// Stream intake errors.
	ErrParsingFailed = errors.New("parsing failed")

	// Lifecycle errors.
	ErrStreamAborted  = errors.New("stream aborted")
	ErrStreamFinished = errors.New("stream already finished")
)

// StreamParseDeferred signals that the accumulated stream prefix does not yet
// contain a complete record. It is a buffering signal, not a failure: callers
// hold their input and feed more data.
var StreamParseDeferred = errors.New("stream parse deferred: insufficient data")

// Cancelled is the explicit non-error outcome for aborted confirmations and
// streams. It is never classified fatal or invalid.
var Cancelled = errors.New("cancelled")

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsFatal checks if an error is fatal and should abort setup.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrSchemaDefinition) || errors.Is(err, ErrDuplicateName)
}

// IsInvalid checks if an error is due to invalid generated content or input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrUnknownComponent) ||
		errors.Is(err, ErrPropSchema) ||
		errors.Is(err, ErrChildrenNotAllowed) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrHandlerNotFound) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrParsingFailed)
}

// IsCancelled checks for the explicit cancellation outcome, including context
// cancellation observed at a suspension point.
func IsCancelled(err error) bool {
	return errors.Is(err, Cancelled) || errors.Is(err, context.Canceled)
}

// IsDeferred checks for the stream buffering signal.
func IsDeferred(err error) bool {
	return errors.Is(err, StreamParseDeferred)
}

// Classify returns the error class for an error.
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
