package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/tools"
)

const (
	msgChatNotFound = "Chat not found"

	// defaultToolListLimit caps get_all_chats so a busy store does not flood
	// the model's context.
	defaultToolListLimit = 50
)

// ConversationService serves conversation listings to the HTTP layer and the
// read-only chat lookups to the SUPPORT agent's tools.
type ConversationService struct {
	DB *gorm.DB
	// ToolListLimit caps the conversations returned to tools. <= 0 means all.
	ToolListLimit int
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db, ToolListLimit: defaultToolListLimit}
}

var _ tools.ConversationOps = (*ConversationService)(nil)

// List returns every conversation, most recently updated first, each with its
// messages in chronological order.
func (s *ConversationService) List(ctx context.Context) ([]domain.Conversation, error) {
	out, err := repo.ListConversations(ctx, s.DB, 0)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Conversation{}
	}
	return out, nil
}

// Get returns one conversation or ErrConversationNotFound.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return c, err
}

// Delete removes a conversation with its messages and agent actions.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	err := repo.DeleteConversation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Stats returns the conversation count and the latest update time, used to
// derive list ETags.
func (s *ConversationService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.ConversationsStats(ctx, s.DB)
}

// chatView is the projection handed to the model: the transcript without
// internal ids.
type chatView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Messages  []messageView `json:"messages"`
}

type messageView struct {
	Role      domain.Role       `json:"role"`
	Content   string            `json:"content"`
	AgentType *domain.AgentType `json:"agentType"`
	CreatedAt time.Time         `json:"createdAt"`
}

func toView(c domain.Conversation) chatView {
	v := chatView{
		ID:        c.ID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]messageView, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		v.Messages = append(v.Messages, messageView{
			Role:      m.Role,
			Content:   m.Content,
			AgentType: m.AgentType,
			CreatedAt: m.CreatedAt,
		})
	}
	return v
}

func toViews(cs []domain.Conversation) []chatView {
	out := make([]chatView, 0, len(cs))
	for _, c := range cs {
		out = append(out, toView(c))
	}
	return out
}

// ConversationByID implements tools.ConversationOps.
func (s *ConversationService) ConversationByID(ctx context.Context, id string) (tools.Result, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return tools.Fail(msgChatNotFound), nil
	}
	c, err := repo.GetConversation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return tools.Fail(msgChatNotFound), nil
	}
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(toView(*c)), nil
}

// ConversationsByName implements tools.ConversationOps.
func (s *ConversationService) ConversationsByName(ctx context.Context, name string) (tools.Result, error) {
	cs, err := repo.ListConversationsByName(ctx, s.DB, strings.TrimSpace(name))
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(toViews(cs)), nil
}

// AllConversations implements tools.ConversationOps.
func (s *ConversationService) AllConversations(ctx context.Context) (tools.Result, error) {
	cs, err := repo.ListConversations(ctx, s.DB, s.ToolListLimit)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(toViews(cs)), nil
}
