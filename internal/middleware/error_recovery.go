package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// ErrorRecoveryMiddleware turns panics into a structured 500 response and logs
// the stack through the service logger.
func ErrorRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stackTrace := string(debug.Stack())

				var panicErr error
				if e, ok := rec.(error); ok {
					panicErr = e
				} else {
					panicErr = fmt.Errorf("panic: %v", rec)
				}

				if logger != nil {
					logger.Error(c.Request.Context(), "Panic recovered", panicErr, map[string]interface{}{
						"method": c.Request.Method,
						"path":   c.Request.URL.Path,
						"stack":  stackTrace,
					})
				}

				appErr := contextutils.NewAppErrorWithCause(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
					panicErr,
				)

				// Add stack trace to error details in development
				if gin.Mode() == gin.DebugMode {
					appErr.Details = fmt.Sprintf("%s\nStack trace: %s", appErr.Details, stackTrace)
				}

				HandleAppError(c, appErr)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// RequestIDMiddleware reuses an inbound X-Request-ID or mints one, echoes it
// on the response and stores it on the request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(contextutils.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// HandleAppError writes err as a structured JSON error. Errors that are not
// AppErrors are reported as internal errors.
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if errors.As(err, &appErr) {
		_ = c.Error(err)
		StandardizeAppError(c, appErr)
		return
	}
	StandardizeHTTPError(c, http.StatusInternalServerError, "Internal server error", err.Error())
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	errorJSON := err.ToJSON()
	if requestID := contextutils.GetRequestIDFromContext(c.Request.Context()); requestID != "" {
		errorJSON["request_id"] = requestID
	}
	c.JSON(StatusForCode(err.Code), errorJSON)
}

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	var code contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest:
		code, severity = contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn
	case http.StatusNotFound:
		code, severity = contextutils.ErrorCodeNotFound, contextutils.SeverityInfo
	case http.StatusTooManyRequests:
		code, severity = contextutils.ErrorCodeRateLimit, contextutils.SeverityWarn
	case http.StatusServiceUnavailable:
		code, severity = contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError
	default:
		code, severity = contextutils.ErrorCodeInternalError, contextutils.SeverityError
	}

	StandardizeAppError(c, contextutils.NewAppError(code, severity, message, details))
}

// StatusForCode maps AppError codes to HTTP status codes
func StatusForCode(code contextutils.ErrorCode) int {
	switch code {
	// 4xx Client Errors
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeValidationFailed:
		return http.StatusBadRequest

	case contextutils.ErrorCodeNotFound:
		return http.StatusNotFound

	case contextutils.ErrorCodeRateLimit:
		return http.StatusTooManyRequests

	case contextutils.ErrorCodeTimeout:
		return http.StatusRequestTimeout

	// 5xx Server Errors
	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeDatabaseConnection,
		contextutils.ErrorCodeCacheUnavailable, contextutils.ErrorCodeCircuitOpen,
		contextutils.ErrorCodeAllModelsFailed:
		return http.StatusServiceUnavailable

	case contextutils.ErrorCodeAIRequestFailed, contextutils.ErrorCodeAIResponseInvalid,
		contextutils.ErrorCodeUnparsableResponse, contextutils.ErrorCodeAuthOrBilling:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
