package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType classifies a BountyScopeError
type ErrorType string

const (
	// ErrorTypeTransient marks failures worth retrying: network errors, timeouts, 5xx, 429, malformed JSON
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeFatal marks upstream failures that will not improve on retry (4xx other than 429)
	ErrorTypeFatal ErrorType = "fatal"
	// ErrorTypeSchema marks a response whose shape does not match what the caller expects
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeValidation indicates invalid configuration or input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound indicates a missing upstream resource
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypePermission indicates authentication or authorization failures
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeRateLimit indicates rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout indicates timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeExternal indicates external service errors
	ErrorTypeExternal ErrorType = "external"
	// ErrorTypeInternal indicates internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// BountyScopeError is the base error type used across bountyscope
type BountyScopeError struct {
	Type       ErrorType
	Message    string
	Err        error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *BountyScopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *BountyScopeError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *BountyScopeError) WithContext(key string, value interface{}) *BountyScopeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new BountyScopeError
func New(errorType ErrorType, message string) *BountyScopeError {
	return &BountyScopeError{
		Type:       errorType,
		Message:    message,
		StackTrace: getStackTrace(),
	}
}

// Wrap wraps an existing error with a BountyScopeError
func Wrap(err error, errorType ErrorType, message string) *BountyScopeError {
	if err == nil {
		return nil
	}

	// Preserve the original context and stack when re-wrapping our own errors
	var inner *BountyScopeError
	if errors.As(err, &inner) {
		return &BountyScopeError{
			Type:       errorType,
			Message:    message,
			Err:        err,
			Context:    copyContext(inner.Context),
			StackTrace: inner.StackTrace,
		}
	}

	return &BountyScopeError{
		Type:       errorType,
		Message:    message,
		Err:        err,
		StackTrace: getStackTrace(),
	}
}

func copyContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

// Common error constructors

// TransientError creates a retry-eligible error
func TransientError(message string, err error) *BountyScopeError {
	if err == nil {
		return New(ErrorTypeTransient, message)
	}
	return Wrap(err, ErrorTypeTransient, message)
}

// FatalError creates an error that must not be retried
func FatalError(message string, err error) *BountyScopeError {
	if err == nil {
		return New(ErrorTypeFatal, message)
	}
	return Wrap(err, ErrorTypeFatal, message)
}

// HTTPStatusError classifies a non-2xx upstream status. 429 and 5xx are transient,
// 401/403 are permission errors, 404 is not found and anything else is fatal.
func HTTPStatusError(endpoint string, status int) *BountyScopeError {
	var e *BountyScopeError
	switch {
	case status == 429:
		e = New(ErrorTypeTransient, fmt.Sprintf("rate limited by server (%d)", status))
	case status >= 500:
		e = New(ErrorTypeTransient, fmt.Sprintf("server error: %d", status))
	case status == 401 || status == 403:
		e = New(ErrorTypePermission, fmt.Sprintf("access denied (%d)", status))
	case status == 404:
		e = New(ErrorTypeNotFound, fmt.Sprintf("resource not found (%d)", status))
	default:
		e = New(ErrorTypeFatal, fmt.Sprintf("unexpected status code: %d", status))
	}
	return e.WithContext("endpoint", endpoint).WithContext("status_code", status)
}

// SchemaError creates an error for a response missing an expected field
func SchemaError(field string, source string) *BountyScopeError {
	return New(ErrorTypeSchema, fmt.Sprintf("unexpected response format: missing %q", field)).
		WithContext("field", field).
		WithContext("source", source)
}

// ValidationError creates a validation error
func ValidationError(message string, args ...interface{}) *BountyScopeError {
	return New(ErrorTypeValidation, fmt.Sprintf(message, args...))
}

// NotFoundError creates a not found error
func NotFoundError(resource string, id string) *BountyScopeError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s with id '%s' not found", resource, id)).
		WithContext("resource", resource).
		WithContext("id", id)
}

// PermissionError creates an authentication or authorization error
func PermissionError(message string) *BountyScopeError {
	return New(ErrorTypePermission, message)
}

// InternalError creates an internal error
func InternalError(message string, err error) *BountyScopeError {
	if err == nil {
		return New(ErrorTypeInternal, message)
	}
	return Wrap(err, ErrorTypeInternal, message)
}

// ExternalError creates an external service error
func ExternalError(service string, err error) *BountyScopeError {
	return Wrap(err, ErrorTypeExternal, fmt.Sprintf("external service error: %s", service)).
		WithContext("service", service)
}

// Helper functions

// Is reports whether any BountyScopeError in err's chain has the given type
func Is(err error, errorType ErrorType) bool {
	for err != nil {
		var e *BountyScopeError
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errorType {
			return true
		}
		err = e.Err
	}
	return false
}

// GetType returns the type of the outermost BountyScopeError
func GetType(err error) (ErrorType, bool) {
	var e *BountyScopeError
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

// GetContext returns the context of the outermost BountyScopeError
func GetContext(err error) map[string]interface{} {
	var e *BountyScopeError
	if errors.As(err, &e) {
		return e.Context
	}
	return nil
}

// StatusCode returns the upstream HTTP status recorded on err, or 0
func StatusCode(err error) int {
	if status, ok := GetContext(err)["status_code"].(int); ok {
		return status
	}
	return 0
}

// UserMessage returns a user-friendly error message
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *BountyScopeError
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeFatal:
			return e.Message
		case ErrorTypeSchema:
			return "A platform returned data in an unexpected format"
		case ErrorTypePermission:
			return "Access was denied, check the configured credentials"
		case ErrorTypeRateLimit:
			return "Too many requests, please try again later"
		case ErrorTypeTimeout, ErrorTypeTransient:
			return "The platform is temporarily unavailable, please try again"
		case ErrorTypeExternal:
			return "An external service is currently unavailable"
		case ErrorTypeInternal:
			return "An internal error occurred, please try again later"
		default:
			return "An unexpected error occurred"
		}
	}

	return "An unexpected error occurred"
}

// getStackTrace captures the current stack trace
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		// Skip runtime and errors package frames
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "pkg/errors") {
			builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return builder.String()
}
