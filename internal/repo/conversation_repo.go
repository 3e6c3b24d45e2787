// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversations
// and their messages.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// messageOrder is the stable chronological order of a transcript.
const messageOrder = "created_at ASC, id ASC"

// CreateConversation inserts a conversation together with its first user
// message in a single transaction. The returned conversation carries that
// message in Messages.
func CreateConversation(ctx context.Context, db *gorm.DB, name, firstMessage string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		Role:           domain.RoleUser,
		Content:        firstMessage,
		CreatedAt:      now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Messages").Create(c).Error; err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, err
	}
	c.Messages = []domain.Message{m}
	return c, nil
}

// ConversationExists reports whether a conversation with id is stored.
func ConversationExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// GetConversation fetches a conversation and its messages in chronological
// order. Missing ids yield ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB { return tx.Order(messageOrder) }).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns conversations with their messages, most recently
// active first. A non-positive limit returns every row.
func ListConversations(ctx context.Context, db *gorm.DB, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	q := db.WithContext(ctx).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB { return tx.Order(messageOrder) }).
		Order("updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListConversationsByName returns every conversation whose display name
// matches name exactly, most recently active first.
func ListConversationsByName(ctx context.Context, db *gorm.DB, name string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB { return tx.Order(messageOrder) }).
		Where("name = ?", name).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// DeleteConversation removes a conversation, its messages, and its agent
// actions atomically. It returns ErrNotFound if nothing was deleted.
func DeleteConversation(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.AgentAction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AppendMessage stores a message in an existing conversation and bumps the
// conversation's UpdatedAt. agentType must be nil for USER messages.
// It returns ErrNotFound if the conversation does not exist.
func AppendMessage(ctx context.Context, db *gorm.DB, conversationID string, role domain.Role, content string, agentType *domain.AgentType) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AgentType:      agentType,
		CreatedAt:      now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a single message by id.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
