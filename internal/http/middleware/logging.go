// Package middleware contains the Gin middleware shared by the chat API.
//
// This file covers request correlation and panic recovery:
//
//   - RequestID() gives every request an id (X-Request-ID) that ends up in
//     access logs, error envelopes and the request-scoped logger.
//   - Recovery() turns a panic into the API's JSON 500 envelope, unless a
//     streamed reply has already started, in which case the stream is cut.
//   - LoggerFrom() returns the request-scoped zerolog.Logger that
//     RedactingLogger attaches, so handlers log with the request id.
//
// Mount order: RequestID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client-supplied ids before they reach logs.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048

	// ChatIDKey is the Gin context key chat handlers set once a turn is bound
	// to a conversation.
	ChatIDKey = "chatID"
	// AgentKey carries the agent that answered the turn, when known.
	AgentKey = "agent"
)

// RequestID reuses a sane inbound X-Request-ID or mints a UUID, stores it in
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// requestID returns the id set by RequestID, falling back to the response
// and request headers.
func requestID(c *gin.Context) string {
	if rid := c.GetString(requestIDKey); rid != "" {
		return rid
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// attachLogger stores a logger carrying the request id and route for
// LoggerFrom and returns it.
func attachLogger(c *gin.Context, route string) *zerolog.Logger {
	l := log.With().
		Str("request_id", requestID(c)).
		Str("method", c.Request.Method).
		Str("path", route).
		Logger()
	c.Set(loggerKey, &l)
	return &l
}

// Recovery intercepts panics, logs the stack, and answers with the JSON 500
// envelope used by every handler:
//
//	{"success":false,"error":"Internal server error","code":"internal_error","request_id":"..."}
//
// A chat reply that already streamed bytes cannot change its status; the
// connection is aborted instead.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				// Deliberate abort of a committed response; the server drops
				// the connection.
				panic(rec)
			}
			rid := requestID(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Str("chat_id", c.GetString(ChatIDKey)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			h := c.Writer.Header()
			// A chat turn may have set text/plain before panicking.
			h.Del("Content-Type")
			h.Set(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success":    false,
				"error":      "Internal server error",
				"code":       "internal_error",
				"request_id": rid,
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// truncate caps s at max bytes and appends an ellipsis. A max <= 0 disables
// truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
