// Chat HTTP handlers.
//
// This file exposes the chat entry points:
//   - POST /chat/messages   (route, run an agent, stream the reply as text)
//   - GET  /health          (liveness)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The chat reply is relayed as
// chunked text/plain; the conversation id travels in the x-chat-id header.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-support-chat/internal/agents"
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/stream"
)

//
// Service contracts (context-aware)
//

// ChatService runs chat turns. Prepare commits the user message (or resolves
// an idempotent replay) before anything is streamed; Run produces the reply.
type ChatService interface {
	Prepare(ctx context.Context, in services.HandleInput) (*services.Turn, error)
	Run(ctx context.Context, t *services.Turn, emit func(stream.Event)) (*services.HandleResult, error)
}

// ConversationService reads and deletes stored conversations.
type ConversationService interface {
	List(ctx context.Context) ([]domain.Conversation, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// AgentCatalog describes the available agents.
type AgentCatalog interface {
	List() []agents.CatalogEntry
	Capabilities(t domain.AgentType) (agents.CatalogEntry, bool)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chat, conversations, and agents.
type Handlers struct {
	chat    ChatService
	convs   ConversationService
	catalog AgentCatalog

	upgrader websocket.Upgrader
	ws       WSOptions
	limiter  *middleware.RateLimiter
}

// New constructs and returns a Handlers instance bound to the given services.
// WebSocket upgrades accept any origin until WithWebSocket narrows them.
func New(chat ChatService, convs ConversationService, catalog AgentCatalog) *Handlers {
	h := &Handlers{chat: chat, convs: convs, catalog: catalog}
	h.WithWebSocket(WSOptions{})
	return h
}

//
// DTOs
//

// SendMessageRequest is the JSON payload for one chat message.
type SendMessageRequest struct {
	// Message is the user text. It must be non-empty.
	Message string `json:"message" example:"Where is my order?"`
	// Name is the user's display name; required when id is absent.
	Name string `json:"name" example:"Asha"`
	// ID continues an existing conversation.
	ID string `json:"id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Timestamp string `json:"timestamp" example:"2024-05-01T12:00:00Z"`
}

//
// Helpers
//

// maxMessageRunes caps user text at the edge.
const maxMessageRunes = 4000

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// CRLF/CR become LF, runs of 3+ LFs collapse to two, and surrounding
// whitespace is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// idempotencyKey prefers the key validated by IdempotencyValidator and falls
// back to the raw header when that middleware is not mounted.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

// prepareError maps a Prepare failure to a status and a user-safe message.
func prepareError(err error) (int, string, string) {
	var ie *services.InputError
	if errors.As(err, &ie) {
		return http.StatusBadRequest, ErrCodeBadRequest, ie.Msg
	}
	return http.StatusInternalServerError, ErrCodeChatFailed, msgProcessFailed
}

// exposeChatID makes x-chat-id readable to browser clients.
func exposeChatID(h http.Header) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	if cur == "" {
		h.Set(hdr, stream.HeaderChatID)
		return
	}
	for _, p := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(p), stream.HeaderChatID) {
			return
		}
	}
	h.Set(hdr, cur+", "+stream.HeaderChatID)
}

// textRelay writes ContentDelta events to the response and flushes each one.
// The status line goes out with the first delta, so a failure before any
// text can still be answered with a JSON error.
type textRelay struct {
	c       *gin.Context
	started bool
	broken  bool
}

func (r *textRelay) emit(e stream.Event) {
	d, ok := e.(stream.ContentDelta)
	if !ok || d.Text == "" || r.broken {
		return
	}
	r.start()
	if _, err := r.c.Writer.WriteString(d.Text); err != nil {
		r.broken = true
		return
	}
	r.c.Writer.Flush()
}

func (r *textRelay) start() {
	if r.started {
		return
	}
	r.started = true
	r.c.Status(http.StatusOK)
	r.c.Writer.WriteHeaderNow()
}

//
// Handlers
//

// PostMessage godoc
// @ID          postChatMessage
// @Summary     Send a chat message and stream the reply
// @Description Routes the message to the SUPPORT, ORDER or BILLING agent and streams its reply as plain text chunks.
// @Description The conversation id is returned in the x-chat-id header before the body.
// @Description Supports idempotency via the Idempotency-Key header (same key → same reply, no new writes).
// @Tags        Chat
// @Accept      json
// @Produce     plain
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Chat message"
//
// @Success     200  {string}  string                  "Streamed reply text"
// @Header      200  {string}  x-chat-id               "Conversation id"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidBody)
		return
	}
	msg := sanitizeContent(req.Message)
	if utf8.RuneCountInString(msg) > maxMessageRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgMessageTooLong)
		return
	}

	ctx := c.Request.Context()
	turn, err := h.chat.Prepare(ctx, services.HandleInput{
		Message:        msg,
		Name:           req.Name,
		ConversationID: strings.TrimSpace(req.ID),
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		status, code, text := prepareError(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		fail(c, status, code, text)
		return
	}
	c.Set(middleware.ChatIDKey, turn.ConversationID)

	hdr := c.Writer.Header()
	hdr.Set(stream.HeaderChatID, turn.ConversationID)
	exposeChatID(hdr)
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	if turn.Replayed() {
		hdr.Set("Idempotency-Replayed", "true")
	}

	relay := &textRelay{c: c}
	done := middleware.TrackStream("http")
	res, err := h.chat.Run(ctx, turn, relay.emit)
	done()
	if err != nil {
		_ = c.Error(err)
		if !relay.started {
			hdr.Del("Content-Type")
			fail(c, http.StatusInternalServerError, ErrCodeChatFailed, msgProcessFailed)
			return
		}
		// Headers are gone. Aborting the connection keeps the chunked body
		// from terminating, so the client reads a truncated reply, not a
		// finished one.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("chat stream ended early")
		panic(http.ErrAbortHandler)
	}
	c.Set(middleware.AgentKey, string(res.Agent))
	relay.start()
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
