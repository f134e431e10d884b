package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeConflict               ErrorCode = "CONFLICT"
	ErrCodeDuplicateParticipant   ErrorCode = "DUPLICATE_PARTICIPANT_NAME"
	ErrCodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"

	// Credits
	ErrCodeInsufficientCredit      ErrorCode = "INSUFFICIENT_CREDIT"
	ErrCodeCreditTransactionFailed ErrorCode = "CREDIT_TRANSACTION_FAILED"

	// Sync
	ErrCodeTransientSync ErrorCode = "TRANSIENT_SYNC_FAILURE"
	ErrCodeTerminalSync  ErrorCode = "TERMINAL_SYNC_FAILURE"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func DuplicateParticipantName(name string) *AppError {
	return New(ErrCodeDuplicateParticipant, fmt.Sprintf("Team name %q is already taken", name))
}

func InvalidStateTransition(from, to string) *AppError {
	return New(ErrCodeInvalidStateTransition, fmt.Sprintf("Cannot move game from %s to %s", from, to))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InsufficientCredit() *AppError {
	return New(ErrCodeInsufficientCredit, "No credits remaining")
}

func CreditTransactionFailed() *AppError {
	return New(ErrCodeCreditTransactionFailed, "Credit could not be debited; session was not created")
}

func TransientSyncFailure(cause error) *AppError {
	return Wrap(ErrCodeTransientSync, "Sync connection interrupted", cause)
}

func TerminalSyncFailure(retries int, cause error) *AppError {
	return Wrap(ErrCodeTerminalSync, fmt.Sprintf("Sync gave up after %d retries", retries), cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
