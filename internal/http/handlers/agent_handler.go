// Agent catalog handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ListAgents godoc
// @ID          listAgents
// @Summary     List agents
// @Description Returns the SUPPORT, ORDER and BILLING agents with their descriptions and capabilities.
// @Tags        Agents
// @Produce     json
// @Success     200  {object}  handlers.DataResponse{data=[]agents.CatalogEntry}
// @Router      /agents [get]
func (h *Handlers) ListAgents(c *gin.Context) {
	okData(c, h.catalog.List())
}

// AgentCapabilities godoc
// @ID          agentCapabilities
// @Summary     Describe one agent
// @Description Returns the catalog entry for an agent type together with the tool names it may call.
// @Tags        Agents
// @Produce     json
//
// @Param       type  path  string  true  "Agent type"  Enums(SUPPORT, ORDER, BILLING)
//
// @Success     200  {object}  handlers.DataResponse{data=agents.CatalogEntry}
// @Failure     400  {object}  handlers.ErrorResponse "Invalid agent type"
// @Failure     404  {object}  handlers.ErrorResponse "Agent not found"
// @Router      /agents/{type}/capabilities [get]
func (h *Handlers) AgentCapabilities(c *gin.Context) {
	t, ok := domain.LookupAgentType(c.Param("type"))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidAgentType)
		return
	}
	entry, ok := h.catalog.Capabilities(t)
	if !ok {
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgAgentNotFound)
		return
	}
	okData(c, entry)
}
