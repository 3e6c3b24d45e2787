// Conversation HTTP handlers.
//
//   - GET    /chat/conversations       (list, weak ETag support)
//   - GET    /chat/conversations/{id}  (one conversation with messages)
//   - DELETE /chat/conversations/{id}  (delete with messages and audit rows)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
)

// conversationsETag derives a weak validator from the row count and the
// newest update time, so any write changes it.
func (h *Handlers) conversationsETag(c *gin.Context) (string, bool) {
	count, maxTS, err := h.convs.Stats(c.Request.Context())
	if err != nil {
		return "", false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"conversations:%d:%d"`, count, ts), true
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns every conversation, most recently updated first, each with its messages in chronological order.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"conversations:3:1714564800\")
//
// @Success     200  {object}  handlers.DataResponse{data=[]domain.Conversation}
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /chat/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	if etag, ok := h.conversationsETag(c); ok {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.convs.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, msgFetchConversations)
		return
	}
	okData(c, items)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.DataResponse{data=domain.Conversation}
// @Failure     400  {object}  handlers.ErrorResponse "Invalid conversation ID"
// @Failure     404  {object}  handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /chat/conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidConversationID)
		return
	}
	c.Set(middleware.ChatIDKey, id)

	conv, err := h.convs.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgConversationNotFound)
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgFetchConversation)
	default:
		okData(c, conv)
	}
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Removes the conversation together with its messages and agent actions.
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid conversation ID"
// @Failure     404  {object}  handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /chat/conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidConversationID)
		return
	}
	c.Set(middleware.ChatIDKey, id)

	err := h.convs.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgConversationNotFound)
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, msgDeleteConversation)
	default:
		okMessage(c, msgConversationDeleted)
	}
}
