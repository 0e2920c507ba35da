// Package errors provides structured error types for launchpad.
// It implements error classification, wrapping, and redaction of credentials.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindValidation indicates a rejected request: illegal transition, missing
	// branch or configuration, unapproved instance.
	KindValidation
	// KindDependency indicates a failed call to an external collaborator
	// (repository service, config store, builder, approval service).
	KindDependency
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindNotification indicates the upstream caller could not be notified.
	KindNotification
	// KindConflict indicates a concurrent modification or duplicate submission.
	KindConflict
	// KindState indicates an operation that is illegal in the current state.
	KindState
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindDependency:
		return "dependency"
	case KindNotFound:
		return "not_found"
	case KindNotification:
		return "notification"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus maps an error kind to the status code the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency, KindNotification:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the standard error type for launchpad.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For sentinel errors (errors without Op), only Kind is compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// GetKind returns the Kind of an error.
// If the error is not an *Error, it returns KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Message returns the message of the outermost *Error, or err.Error() for
// foreign errors. Validation messages are surfaced to callers verbatim.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Dependency creates an error for a failed external collaborator call.
func Dependency(op, message string) *Error {
	return &Error{Kind: KindDependency, Op: op, Message: message}
}

// DependencyWrap wraps an error as a dependency error.
func DependencyWrap(err error, op, message string) *Error {
	return Wrap(err, KindDependency, op, message)
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// NotFoundWrap wraps an error as a not found error.
func NotFoundWrap(err error, op, message string) *Error {
	return Wrap(err, KindNotFound, op, message)
}

// NotificationWrap wraps an error raised while notifying the upstream caller.
func NotificationWrap(err error, op, message string) *Error {
	return Wrap(err, KindNotification, op, message)
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// ConflictWrap wraps an error as a conflict error.
func ConflictWrap(err error, op, message string) *Error {
	return Wrap(err, KindConflict, op, message)
}

// State creates a state management error.
func State(op, message string) *Error {
	return &Error{Kind: KindState, Op: op, Message: message}
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message}
}

// InternalWrap wraps an error as an internal error.
func InternalWrap(err error, op, message string) *Error {
	return Wrap(err, KindInternal, op, message)
}

// Credentials that must never reach logs or callers.
var sensitivePatterns = []*regexp.Regexp{
	// GitLab personal/project access tokens
	regexp.MustCompile(`\bglpat-[a-zA-Z0-9_-]{20,}\b`),
	// GitHub tokens
	regexp.MustCompile(`\bgh[posh]_[a-zA-Z0-9]{36,}\b`),
	// Generic bearer tokens
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9._-]{20,}\b`),
	// Basic auth with password in URL
	regexp.MustCompile(`://[^:/]+:[^@]+@`),
	// access_token query parameters
	regexp.MustCompile(`access_token=[^&\s]+`),
}

// RedactSensitive removes credentials from a message.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// WrapSafe wraps an error with credentials redacted from its message.
func WrapSafe(err error, kind Kind, op, message string) *Error {
	if err == nil {
		return &Error{Kind: kind, Op: op, Message: message}
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return Wrap(err, kind, op, message)
	}
	return Wrap(errors.New(redacted), kind, op, message)
}
