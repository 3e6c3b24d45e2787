package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey names the client-chosen key that makes a chat turn
// safe to retry. A retried turn with a known key replays the stored reply
// instead of calling the model again.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether a stored reply exists for this request's key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyOptions tunes key validation. Zero values pick a 200 byte
// limit and the token pattern ^[A-Za-z0-9._~\-:]+$.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
	// Routes limits the validator to "METHOD /route/pattern" entries, e.g.
	// "POST /api/chat/messages". Empty means every request.
	Routes []string
}

// IdempotencyLookup reports whether the request would be answered from a
// stored reply. conversationID is the "id" field of the JSON body, empty when
// absent. It must apply the same rule the chat service uses to replay, since
// a true answer exempts the request from rate limiting.
type IdempotencyLookup func(ctx context.Context, key, conversationID string) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and marks replays.
//
// Requests without the header pass through untouched. A malformed key is
// rejected with 400. When the lookup confirms a replay the request is marked
// and exempted from rate limiting; the chat service then serves the stored
// reply. Lookup failures are logged and treated as a miss.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	var routes map[string]struct{}
	if len(opts.Routes) > 0 {
		routes = make(map[string]struct{}, len(opts.Routes))
		for _, r := range opts.Routes {
			routes[r] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if routes != nil {
			if _, ok := routes[c.Request.Method+" "+c.FullPath()]; !ok {
				c.Next()
				return
			}
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid Idempotency-Key",
				"code":    "bad_idempotency_key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		// A body that cannot be read or parsed is never a replay; the handler
		// rejects it.
		if id, ok := peekConversationID(c); ok && lookup != nil {
			found, err := lookup(c.Request.Context(), key, id)
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				idempotentReplays.Inc()
			}
		}
		c.Next()
	}
}

// peekConversationID reads the "id" field of a JSON body and puts the bytes
// back for the handler. An empty body has no id; ok is false when the body
// cannot be read or is not a JSON object.
func peekConversationID(c *gin.Context) (id string, ok bool) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return "", true
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", true
	}
	var body struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return "", false
	}
	return strings.TrimSpace(body.ID), true
}
