package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"osscprep/internal/middleware"
	contextutils "osscprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	middleware.StandardizeHTTPError(c, statusCode, message, details)
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)
	middleware.StandardizeAppError(c, appErr)
}

// HandleAppError handles any AppError and sends appropriate HTTP response
func HandleAppError(c *gin.Context, err error) {
	middleware.HandleAppError(c, err)
}

// HandleBindError reports a request body that failed to decode or bind.
// Field-level validator failures are listed in the details.
func HandleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		middleware.StandardizeAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityWarn,
			"Request validation failed",
			strings.Join(fields, "; "),
		))
		return
	}
	StandardizeHTTPError(c, http.StatusBadRequest, "Invalid request format", err.Error())
}
