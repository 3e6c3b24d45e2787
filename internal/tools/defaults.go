package tools

import (
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/search"
)

// NewAgentRegistry registers the ORDER, BILLING and SUPPORT tool sets.
func NewAgentRegistry(orders OrderOps, billing BillingOps, convs ConversationOps, faq search.Index) *Registry {
	r := NewRegistry()
	r.MustRegister(domain.AgentOrder, OrderTools(orders, billing)...)
	r.MustRegister(domain.AgentBilling, BillingTools(billing)...)
	r.MustRegister(domain.AgentSupport, SupportTools(convs, faq)...)
	return r
}
