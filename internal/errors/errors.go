package errors

import (
	"errors"
	"fmt"
	"net/http"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthenticated indicates rejected credentials or tokens.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeUnverified indicates an account whose email is not verified.
	ErrCodeUnverified ErrorCode = "unverified_email"
	// ErrCodeUpstream indicates the backend failed or could not be reached.
	ErrCodeUpstream ErrorCode = "upstream"
	// ErrCodeRateLimited indicates the client exceeded its request budget.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Fields holds per-field messages when several fields failed validation
	Fields map[string]string
	// Status overrides the HTTP status derived from Code (e.g., an upstream status passthrough)
	Status int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code the error should be reported with.
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeUnverified:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUpstream:
		return http.StatusInternalServerError
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
		Fields:  map[string]string{field: message},
	}
}

// ValidationFields creates a Validation error carrying several field messages.
// Returns nil when fields is empty so callers can return it directly.
func ValidationFields(fields map[string]string) *AppError {
	if len(fields) == 0 {
		return nil
	}
	return &AppError{
		Code:    ErrCodeValidation,
		Message: "request validation failed",
		Fields:  fields,
	}
}

// Unauthenticated creates a generic authentication error.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthenticated,
		Message: message,
	}
}

// Upstream creates an upstream error carrying the backend status when known.
func Upstream(status int, message string) *AppError {
	return &AppError{
		Code:    ErrCodeUpstream,
		Message: message,
		Status:  status,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// FromFailure translates an auth-path failure into the HTTP error taxonomy.
// Invalid-credential failures always carry the same generic message.
func FromFailure(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	f := domainauth.AsFailure(err)
	switch f.Kind {
	case domainauth.FailureValidation:
		return &AppError{Code: ErrCodeValidation, Message: f.Detail, Fields: f.Fields, Cause: err}
	case domainauth.FailureInvalid:
		return &AppError{Code: ErrCodeUnauthenticated, Message: "Invalid email or password", Cause: err}
	case domainauth.FailureUnverified:
		return &AppError{Code: ErrCodeUnverified, Message: "Please verify your email address", Cause: err}
	case domainauth.FailureUpstream:
		status := 0
		if f.Status >= 400 {
			status = f.Status
		}
		msg := f.Detail
		if msg == "" {
			msg = "Authentication service unavailable"
		}
		return &AppError{Code: ErrCodeUpstream, Message: msg, Status: status, Cause: err}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "Internal server error", Cause: err}
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool {
	return isCode(err, ErrCodeUnauthenticated)
}

// IsUpstream checks if an error is an Upstream error.
func IsUpstream(err error) bool {
	return isCode(err, ErrCodeUpstream)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
