package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tbourn/go-support-chat/internal/search"
)

// ConversationOps is the read-only conversation API the SUPPORT tools call.
type ConversationOps interface {
	ConversationByID(ctx context.Context, id string) (Result, error)
	ConversationsByName(ctx context.Context, name string) (Result, error)
	AllConversations(ctx context.Context) (Result, error)
}

// faqTopK is how many FAQ entries search_faq returns.
const faqTopK = 3

// SupportTools builds the SUPPORT agent's tool set. faq may be nil, in which
// case search_faq reports that no knowledge base is configured.
func SupportTools(convs ConversationOps, faq search.Index) []Tool {
	return []Tool{
		{
			Name:        "get_chat_by_id",
			Description: "Get full chat details using chat ID",
			Parameters:  object(map[string]any{"chatId": str("The chat ID")}, "chatId"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a struct {
					ChatID string `json:"chatId"`
				}
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return convs.ConversationByID(ctx, a.ChatID)
			},
		},
		{
			Name:        "get_chats_by_name",
			Description: "Get all chats for a user by name",
			Parameters:  object(map[string]any{"name": str("User name")}, "name"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a struct {
					Name string `json:"name"`
				}
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return convs.ConversationsByName(ctx, a.Name)
			},
		},
		{
			Name:        "get_all_chats",
			Description: "Get all chats in the system",
			Parameters:  object(map[string]any{}),
			Execute: func(ctx context.Context, _ json.RawMessage) (Result, error) {
				return convs.AllConversations(ctx)
			},
		},
		{
			Name:        "search_faq",
			Description: "Search the help center FAQ for answers to general questions (shipping, returns, payments, account)",
			Parameters:  object(map[string]any{"query": str("The user's question in plain words")}, "query"),
			Execute: func(_ context.Context, raw json.RawMessage) (Result, error) {
				var a struct {
					Query string `json:"query"`
				}
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				if strings.TrimSpace(a.Query) == "" {
					return Fail("Query is required"), nil
				}
				if faq == nil || faq.Len() == 0 {
					return Fail("No FAQ knowledge base is configured"), nil
				}
				hits := faq.TopK(a.Query, faqTopK)
				if hits == nil {
					hits = []search.Result{}
				}
				return OK(hits), nil
			},
		},
	}
}
