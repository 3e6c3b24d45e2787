// Package agents implements the intent router and the three support personas
// (SUPPORT, ORDER, BILLING). A persona is a Profile (prompt and catalog
// metadata) plus an Executor that streams completions and resolves tool calls
// against the tools.Registry.
package agents

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// RouterPrompt is the default system prompt of the intent classifier.
const RouterPrompt = `You are an intent router for a customer support system.

Classify the user's message into exactly ONE of these categories:

SUPPORT:
- General help
- Confusion
- FAQs
- Questions not related to orders or payments

ORDER:
- Order status
- Creating orders
- Cancelling or returning orders
- Order details
- Shipping or delivery questions

BILLING:
- Payments
- Refunds
- Charges

Return ONLY the category name.`

const toolErrorGuidance = `If a tool returns success=false, explain the error to the user
and ask for missing or correct information.
Use html break lines to make the response more readable.`

// Profile is the static description of one agent persona.
type Profile struct {
	Type         domain.AgentType
	Description  string
	Capabilities []string
	SystemPrompt string
}

// Profiles bundles the router prompt with every agent profile.
type Profiles struct {
	RouterPrompt string
	Agents       map[domain.AgentType]Profile
}

// Get returns the profile for t.
func (p Profiles) Get(t domain.AgentType) (Profile, bool) {
	pr, ok := p.Agents[t]
	return pr, ok
}

// DefaultProfiles returns the built-in prompts and catalog entries.
func DefaultProfiles() Profiles {
	return Profiles{
		RouterPrompt: RouterPrompt,
		Agents: map[domain.AgentType]Profile{
			domain.AgentSupport: {
				Type:        domain.AgentSupport,
				Description: "General customer support assistant",
				Capabilities: []string{
					"Answer general questions",
					"Provide FAQs",
					"Help with account issues",
					"General assistance",
				},
				SystemPrompt: `You are a customer support assistant.

CRITICAL RULES:
- You must ALWAYS respond with a user-facing message.
- Even if tools return empty data, explain that clearly.
- Never end a response with only tool calls.
- If you cannot find relevant past chats, say so politely.`,
			},
			domain.AgentOrder: {
				Type:        domain.AgentOrder,
				Description: "Order management assistant",
				Capabilities: []string{
					"Create orders",
					"Check order status",
					"Get order details",
					"Cancel orders",
					"Return orders",
					"View user orders",
					"Get payment details for orders",
				},
				SystemPrompt: "You are an order support assistant.\n" + toolErrorGuidance,
			},
			domain.AgentBilling: {
				Type:        domain.AgentBilling,
				Description: "Billing and payment assistant",
				Capabilities: []string{
					"Create payments",
					"Check payment status",
					"Get payment details",
					"Refund payments",
					"View user payments",
					"Get payments for orders",
					"Get order details from payments",
				},
				SystemPrompt: "You are a billing support assistant.\n" + toolErrorGuidance,
			},
		},
	}
}

// LoadProfiles returns DefaultProfiles with overrides read from a YAML (or
// any viper-supported) file. An empty path yields the defaults.
//
// Layout:
//
//	router:
//	  system_prompt: "..."
//	agents:
//	  order:
//	    description: "..."
//	    capabilities: ["...", "..."]
//	    system_prompt: "..."
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if strings.TrimSpace(path) == "" {
		return profiles, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return profiles, fmt.Errorf("read agent profiles: %w", err)
	}

	if s := strings.TrimSpace(v.GetString("router.system_prompt")); s != "" {
		profiles.RouterPrompt = s
	}

	for key := range v.GetStringMap("agents") {
		t, ok := domain.ParseAgentType(key)
		if !ok {
			return profiles, fmt.Errorf("agent profiles: unknown agent %q", key)
		}
		p := profiles.Agents[t]
		base := "agents." + key
		if s := strings.TrimSpace(v.GetString(base + ".system_prompt")); s != "" {
			p.SystemPrompt = s
		}
		if s := strings.TrimSpace(v.GetString(base + ".description")); s != "" {
			p.Description = s
		}
		if v.IsSet(base + ".capabilities") {
			p.Capabilities = v.GetStringSlice(base + ".capabilities")
		}
		profiles.Agents[t] = p
	}
	return profiles, nil
}
