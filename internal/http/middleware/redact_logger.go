// Package middleware contains the Gin middleware shared by the chat API.
//
// This file implements RedactingLogger, the access log. It never logs bodies
// (chat messages, replies), masks credentials in headers, and scrubs emails,
// phone numbers and UUIDs (conversation, order and payment ids) from query
// strings and header values.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Order matters when scrubbing: UUIDs first, since the phone pattern would
// otherwise match their digit runs.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex segments never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// alwaysMasked headers are replaced wholesale regardless of options.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie"}

// RedactOptions configures RedactingLogger.
//
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]".
type RedactOptions struct {
	MaskHeaders []string
}

// scrub redacts identifiers and contact details from s.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

type headerMask map[string]struct{}

func newHeaderMask(extra []string) headerMask {
	m := make(headerMask, len(alwaysMasked)+len(extra))
	for _, h := range append(append([]string{}, alwaysMasked...), extra...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return m
}

func (m headerMask) apply(hdr map[string][]string) map[string]string {
	out := make(map[string]string, len(hdr))
	for k, vv := range hdr {
		if _, ok := m[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = scrub(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger attaches the request-scoped logger (see LoggerFrom) and
// writes one access line per request once the handler returns. Streamed
// chat replies are logged when the stream ends, so latency covers the whole
// generation.
//
// Level follows the outcome: error for 5xx or recorded handler errors, warn
// for 4xx, info otherwise. Chat routes add the answering agent and whether
// the turn was an idempotent replay.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := newHeaderMask(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		query := truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)
		headers := mask.apply(c.Request.Header)
		lg := attachLogger(c, route)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if agent := c.GetString(AgentKey); agent != "" {
			ev = ev.Str("agent", agent)
		}
		if IsReplay(c) {
			ev = ev.Bool("replayed", true)
		}

		ev.
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
