package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// RecordAgentAction appends an audit row for conversationID.
func RecordAgentAction(ctx context.Context, db *gorm.DB, conversationID string, agent domain.AgentType, action string, metadata map[string]any) (*domain.AgentAction, error) {
	a := &domain.AgentAction{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		AgentType:      agent,
		Action:         action,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Conversation").Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// ListAgentActions returns the audit trail of a conversation, oldest first.
func ListAgentActions(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.AgentAction, error) {
	var out []domain.AgentAction
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
