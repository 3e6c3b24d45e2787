package domain

import "time"

// Idempotency remembers the agent reply produced for a client-supplied
// Idempotency-Key so that a retried chat turn is answered from storage
// instead of re-running tools with side effects.
type Idempotency struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	Key            string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_key"`
	ConversationID string    `gorm:"type:char(36);not null;index"`
	MessageID      string    `gorm:"type:char(36);not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

func (Idempotency) TableName() string { return "idempotency_keys" }
