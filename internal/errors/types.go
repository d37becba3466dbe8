// Package errors defines the structured error type shared by the playground
// packages and the helpers the HTTP layer uses to map errors to responses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeCompile    ErrorType = "compile"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeMalformedFragment = "ERR_MALFORMED_FRAGMENT"
	ErrCodeSourceTooLarge    = "ERR_SOURCE_TOO_LARGE"
	ErrCodeInvalidRequest    = "ERR_INVALID_REQUEST"
	ErrCodeRateLimited       = "ERR_RATE_LIMITED"
	ErrCodeCompileFailed     = "ERR_COMPILE_FAILED"
	ErrCodeCompileTimeout    = "ERR_COMPILE_TIMEOUT"
	ErrCodeCommandRejected   = "ERR_COMMAND_REJECTED"
	ErrCodeSnippetNotFound   = "ERR_SNIPPET_NOT_FOUND"
	ErrCodeStorageFailed     = "ERR_STORAGE_FAILED"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// PlaygroundError is a structured error type with context.
type PlaygroundError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *PlaygroundError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PlaygroundError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PlaygroundError with the same type and code.
func (e *PlaygroundError) Is(target error) bool {
	var t *PlaygroundError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PlaygroundError) WithContext(key string, value interface{}) *PlaygroundError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PlaygroundError {
	return &PlaygroundError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewDecodeError creates an error for a fragment that cannot be decoded.
func NewDecodeError(code, message string, cause error) *PlaygroundError {
	return &PlaygroundError{Type: ErrorTypeDecode, Code: code, Message: message, Cause: cause}
}

// NewCompileError creates a compiler invocation error.
func NewCompileError(code, message string, cause error) *PlaygroundError {
	return &PlaygroundError{Type: ErrorTypeCompile, Code: code, Message: message, Cause: cause}
}

// NewStorageError creates a snippet storage error.
func NewStorageError(code, message string, cause error) *PlaygroundError {
	return &PlaygroundError{Type: ErrorTypeStorage, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PlaygroundError {
	return &PlaygroundError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// WrapInternal wraps an unexpected error. A nil cause yields nil.
func WrapInternal(cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &PlaygroundError{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: message, Cause: cause}
}

// IsType reports whether err wraps a PlaygroundError of type t.
func IsType(err error, t ErrorType) bool {
	var pe *PlaygroundError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// HasCode reports whether err wraps a PlaygroundError with the given code.
func HasCode(err error, code string) bool {
	var pe *PlaygroundError
	if errors.As(err, &pe) {
		return pe.Code == code
	}

	return false
}

// HTTPStatus maps an error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	var pe *PlaygroundError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}

	switch pe.Type {
	case ErrorTypeValidation, ErrorTypeDecode:
		switch pe.Code {
		case ErrCodeSourceTooLarge:
			return http.StatusRequestEntityTooLarge
		case ErrCodeRateLimited:
			return http.StatusTooManyRequests
		}
		return http.StatusBadRequest
	case ErrorTypeCompile:
		if pe.Code == ErrCodeCompileTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusUnprocessableEntity
	case ErrorTypeStorage:
		if pe.Code == ErrCodeSnippetNotFound {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Logger is the subset of the logging interface error handling needs.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler logs errors at a severity matching their type.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err. Client-side mistakes are warnings; everything else is an
// error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PlaygroundError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch pe.Type {
	case ErrorTypeValidation, ErrorTypeDecode, ErrorTypeCompile:
		h.logger.Warn(ctx, err, "Request rejected", "type", pe.Type, "code", pe.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred", "type", pe.Type, "code", pe.Code)
	}
}
