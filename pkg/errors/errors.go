package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorCode is the stable, caller-facing identifier of a failure kind.
type ErrorCode string

const (
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

	// Authentication
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountNotActive   ErrorCode = "ACCOUNT_NOT_ACTIVE"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"

	// Tokens
	ErrCodeInvalidToken   ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired   ErrorCode = "TOKEN_EXPIRED"
	ErrCodeWrongTokenType ErrorCode = "WRONG_TOKEN_TYPE"

	// Authorization
	ErrCodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeInsufficientClearance   ErrorCode = "INSUFFICIENT_CLEARANCE"

	// Input and resources
	ErrCodeDuplicateResource    ErrorCode = "DUPLICATE_RESOURCE"
	ErrCodeRequiredFieldMissing ErrorCode = "REQUIRED_FIELD_MISSING"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"

	// Infrastructure
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// DetailRetryAfter is the detail key carrying the number of seconds a caller
// should wait before retrying (lockout, rate limiting).
const DetailRetryAfter = "retry_after_seconds"

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinel values such as
// ErrInvalidCredentials work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the HTTP status for this error's code
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// RetryAfter returns the retry hint carried in the details, if any.
func (e *Error) RetryAfter() (time.Duration, bool) {
	v, ok := e.Details[DetailRetryAfter]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	case string:
		secs, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with code and message. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// As is a shorthand for errors.As against *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeRequiredFieldMissing, ErrCodeValidationFailed:
		return http.StatusBadRequest

	case ErrCodeInvalidCredentials, ErrCodeInvalidToken, ErrCodeTokenExpired, ErrCodeWrongTokenType:
		return http.StatusUnauthorized

	case ErrCodeAccountNotActive, ErrCodeInsufficientPermissions, ErrCodeInsufficientClearance:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeDuplicateResource:
		return http.StatusConflict

	case ErrCodeAccountLocked:
		return http.StatusLocked

	case ErrCodeRateLimited:
		return http.StatusTooManyRequests

	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons. Never return these directly when a
// detail or cause needs attaching; build a fresh *Error with the same code.
var (
	ErrInvalidCredentials      = New(ErrCodeInvalidCredentials, "")
	ErrAccountNotActive        = New(ErrCodeAccountNotActive, "")
	ErrAccountLocked           = New(ErrCodeAccountLocked, "")
	ErrInvalidToken            = New(ErrCodeInvalidToken, "")
	ErrTokenExpired            = New(ErrCodeTokenExpired, "")
	ErrWrongTokenType          = New(ErrCodeWrongTokenType, "")
	ErrInsufficientPermissions = New(ErrCodeInsufficientPermissions, "")
	ErrInsufficientClearance   = New(ErrCodeInsufficientClearance, "")
	ErrDuplicateResource       = New(ErrCodeDuplicateResource, "")
	ErrRequiredFieldMissing    = New(ErrCodeRequiredFieldMissing, "")
	ErrValidationFailed        = New(ErrCodeValidationFailed, "")
	ErrServiceUnavailable      = New(ErrCodeServiceUnavailable, "")
	ErrRateLimited             = New(ErrCodeRateLimited, "")
)

// InvalidCredentials is the generic login failure. It deliberately carries no
// hint about whether the account exists.
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, "invalid email or password")
}

func AccountNotActive(status string) *Error {
	return New(ErrCodeAccountNotActive, "account is not active").WithDetail("status", status)
}

// AccountLocked reports a lockout that lasts until the given instant.
func AccountLocked(until, now time.Time) *Error {
	secs := int(until.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return New(ErrCodeAccountLocked, "account is temporarily locked").
		WithDetail(DetailRetryAfter, secs).
		WithDetail("locked_until", until.UTC().Format(time.RFC3339))
}

func RequiredFieldMissing(field string) *Error {
	return Newf(ErrCodeRequiredFieldMissing, "%s is required", field).WithDetail("field", field)
}

func ValidationFailed(message string, violations []string) *Error {
	e := New(ErrCodeValidationFailed, message)
	if len(violations) > 0 {
		e.WithDetail("violations", violations)
	}
	return e
}

func DuplicateResource(resource string) *Error {
	return Newf(ErrCodeDuplicateResource, "%s already exists", resource)
}

func InsufficientPermissions(message string) *Error {
	return New(ErrCodeInsufficientPermissions, message)
}

func InsufficientClearance(required string) *Error {
	return New(ErrCodeInsufficientClearance, "insufficient clearance level").WithDetail("required", required)
}

func ServiceUnavailable(err error, message string) *Error {
	return &Error{Code: ErrCodeServiceUnavailable, Message: message, Err: err}
}

func RateLimited(retryAfter time.Duration) *Error {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return New(ErrCodeRateLimited, "too many requests").WithDetail(DetailRetryAfter, secs)
}

func Internal(err error, message string) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Err: err}
}
