package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeIntegrity    ErrorType = "integrity"
	ErrorTypeDelivery     ErrorType = "delivery"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

// NewPreconditionError reports an operation attempted from an illegal state,
// such as withdrawing a consent that was never granted or processing a
// terminal request.
func NewPreconditionError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypePrecondition,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 412,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

// NewIntegrityError reports a per-table operation failure collected during a
// best-effort sweep. Callers inspect the surrounding result for partial
// success.
func NewIntegrityError(table, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeIntegrity,
		Code:       "INTEGRITY_FAILURE",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
		Details:    map[string]interface{}{"table": table},
	}
}

// NewDeliveryError reports a failed webhook delivery attempt.
func NewDeliveryError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeDelivery,
		Code:       "DELIVERY_FAILURE",
		Message:    message,
		Retryable:  true,
		StatusCode: 502,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// Predefined common errors
var (
	ErrNoActiveConsent      = NewPreconditionError("NO_ACTIVE_CONSENT", "no active consent to withdraw")
	ErrConsentNotFound      = NewNotFoundError("consent")
	ErrRequestNotFound      = NewNotFoundError("request")
	ErrRestrictionNotFound  = NewNotFoundError("processing restriction")
	ErrSubscriptionNotFound = NewNotFoundError("webhook subscription")
	ErrPolicyNotFound       = NewNotFoundError("retention policy")
	ErrDuplicateRequest     = NewConflictError("an open request of this type already exists for the subject")
	ErrRestrictionExists    = NewConflictError("an active processing restriction already exists for the subject")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound checks if an error represents a missing resource
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
