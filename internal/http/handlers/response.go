// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response envelopes used across all JSON
// endpoints. Every body carries a boolean `success`; failures add `error`
// (a user-safe message) plus a stable `code` for programmatic handling.
//
// Conventions:
//   - fail() centralizes error formatting and logs 5xx with request context.
//   - okData() and okMessage() write the two success shapes.
//   - 5xx messages are generic; details stay in the logs.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "error": "Conversation not found",
//	  "code": "not_found",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": [ ... ] }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all JSON endpoints.
type ErrorResponse struct {
	// Always false
	Success bool `json:"success" example:"false"`
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"Conversation not found"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code,omitempty" example:"not_found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}

// MessageResponse is a success envelope carrying only a confirmation message.
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Conversation deleted successfully"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// okData writes {success:true, data}.
func okData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Success: true, Data: data})
}

// okMessage writes {success:true, message}.
func okMessage(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: msg})
}
