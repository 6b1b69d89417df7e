package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/shared/telemetry"
)

// Error codes shared by every handler.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodePersistence  = "persistence_error"
	CodeInternal     = "internal_error"
	CodeTimeout      = "timeout"
	CodeRateLimited  = "rate_limited"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// FieldIssue describes one invalid input field.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Error logs and sends a standardized error response, aborting the chain.
// Server-side failures log at error level, client mistakes at warn.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": telemetry.RequestID(c.Request.Context()),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// Invalid reports a single bad input field.
func Invalid(c *gin.Context, message, field, issue string) {
	Error(c, http.StatusBadRequest, CodeValidation, message, []FieldIssue{{Field: field, Issue: issue}})
}

// Unauthorized reports a missing or rejected bearer token.
func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid token", nil)
}

// Canceled reports a request whose context ended before the work finished.
func Canceled(c *gin.Context) {
	Error(c, http.StatusRequestTimeout, CodeTimeout, "request canceled", nil)
}
