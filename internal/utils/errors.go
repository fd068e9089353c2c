// Package contextutils provides the structured error type shared by every
// layer of the question sourcing service, plus a few small helpers for
// request validation and credential masking.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a stable, machine-readable error identifier used in API responses
type ErrorCode string

const (
	// Storage

	// ErrorCodeDatabaseConnection indicates the event store could not be reached
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a statement against the event store failed
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeCacheUnavailable indicates the usage-set cache (redis) failed
	ErrorCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	// Input

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeValidationFailed indicates struct validation failed
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeNotFound indicates an unknown exam, subject or topic
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// Service

	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeRateLimit indicates the upstream provider answered 429
	ErrorCodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"
	// ErrorCodeFallbackBankInvalid indicates the built-in fallback questions are malformed
	ErrorCodeFallbackBankInvalid ErrorCode = "FALLBACK_BANK_INVALID"

	// AI provider

	// ErrorCodeAIRequestFailed indicates that the AI request failed
	ErrorCodeAIRequestFailed ErrorCode = "AI_REQUEST_FAILED"
	// ErrorCodeAIResponseInvalid indicates that the AI response could not be used
	ErrorCodeAIResponseInvalid ErrorCode = "AI_RESPONSE_INVALID"
	// ErrorCodeAIConfigInvalid indicates that the AI configuration is invalid
	ErrorCodeAIConfigInvalid ErrorCode = "AI_CONFIG_INVALID"
	// ErrorCodeUnparsableResponse indicates model output held no extractable JSON
	ErrorCodeUnparsableResponse ErrorCode = "UNPARSABLE_RESPONSE"
	// ErrorCodeAllModelsFailed indicates every model in a race or sequential pass failed
	ErrorCodeAllModelsFailed ErrorCode = "ALL_MODELS_FAILED"
	// ErrorCodeAuthOrBilling indicates an account-level provider failure (401/402)
	ErrorCodeAuthOrBilling ErrorCode = "AUTH_OR_BILLING_ERROR"
	// ErrorCodeCircuitOpen indicates the AI tier is cooling down after repeated failures
	ErrorCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

var (
	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrCacheUnavailable = &AppError{
		Code:     ErrorCodeCacheUnavailable,
		Severity: SeverityWarn,
		Message:  "Usage cache unavailable",
	}

	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}

	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	ErrNotFound = &AppError{
		Code:     ErrorCodeNotFound,
		Severity: SeverityInfo,
		Message:  "Not found",
	}

	ErrServiceUnavailable = &AppError{
		Code:     ErrorCodeServiceUnavailable,
		Severity: SeverityError,
		Message:  "Service unavailable",
	}

	ErrTimeout = &AppError{
		Code:     ErrorCodeTimeout,
		Severity: SeverityWarn,
		Message:  "Request timeout",
	}

	ErrRateLimit = &AppError{
		Code:     ErrorCodeRateLimit,
		Severity: SeverityWarn,
		Message:  "Rate limit exceeded",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}

	ErrFallbackBankInvalid = &AppError{
		Code:     ErrorCodeFallbackBankInvalid,
		Severity: SeverityFatal,
		Message:  "Static fallback questions are invalid",
	}

	ErrAIRequestFailed = &AppError{
		Code:     ErrorCodeAIRequestFailed,
		Severity: SeverityError,
		Message:  "AI request failed",
	}

	ErrAIResponseInvalid = &AppError{
		Code:     ErrorCodeAIResponseInvalid,
		Severity: SeverityError,
		Message:  "AI response invalid",
	}

	ErrAIConfigInvalid = &AppError{
		Code:     ErrorCodeAIConfigInvalid,
		Severity: SeverityError,
		Message:  "AI configuration invalid",
	}

	ErrUnparsableResponse = &AppError{
		Code:     ErrorCodeUnparsableResponse,
		Severity: SeverityWarn,
		Message:  "Model response contained no JSON",
	}

	ErrAllModelsFailed = &AppError{
		Code:     ErrorCodeAllModelsFailed,
		Severity: SeverityWarn,
		Message:  "All models failed",
	}

	ErrAuthOrBilling = &AppError{
		Code:     ErrorCodeAuthOrBilling,
		Severity: SeverityError,
		Message:  "AI provider rejected credentials or billing",
	}

	ErrCircuitOpen = &AppError{
		Code:     ErrorCodeCircuitOpen,
		Severity: SeverityInfo,
		Message:  "AI tier cooling down",
	}
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, keeping the code of an
// AppError cause. Plain errors become internal errors.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  err.Error(),
			Cause:    err,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps err with a formatted message. A %w verb in format is
// honoured, so the formatted chain stays reachable through errors.Is.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	code, severity := ErrorCodeInternalError, SeverityError
	var appErr *AppError
	if errors.As(err, &appErr) {
		code, severity = appErr.Code, appErr.Severity
	}

	if strings.Contains(format, "%w") {
		wrapped := fmt.Errorf(format, args...)
		return &AppError{
			Code:     code,
			Severity: severity,
			Message:  wrapped.Error(),
			Details:  err.Error(),
			Cause:    wrapped,
		}
	}

	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		Details:  err.Error(),
		Cause:    err,
	}
}

// ErrorWithContextf creates a new internal error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError reports whether any error in err's chain carries target's code.
func IsError(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// AsError extracts the outermost AppError from err's chain.
func AsError(err error, target **AppError) bool {
	return errors.As(err, target)
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// GetErrorSeverity returns the severity level from an error if it's an AppError, otherwise returns error
func GetErrorSeverity(err error) SeverityLevel {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityError
}

// IsRetryable reports whether the failure is likely transient.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection,
		ErrorCodeRateLimit, ErrorCodeCircuitOpen, ErrorCodeCacheUnavailable:
		return appErr.Severity != SeverityFatal
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":      string(e.Code),
		"message":   e.Message,
		"severity":  string(e.Severity),
		"error":     e.Message,
		"retryable": IsRetryable(e),
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// LearnerIDKey carries the learner whose usage set a request reads and writes
	LearnerIDKey ContextKey = "learnerID"
	// RequestIDKey carries the correlation id assigned by the HTTP layer
	RequestIDKey ContextKey = "requestID"
)

// WithLearnerID returns a new context with the learner ID set
func WithLearnerID(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, LearnerIDKey, learnerID)
}

// GetLearnerIDFromContext returns the learner ID, or "" when none is set.
func GetLearnerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(LearnerIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a new context with the request ID set
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestIDFromContext returns the request ID, or "" when none is set.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
