// Package domain defines the persistence models for conversations, messages,
// orders, payments, and the agent audit trail. These types are mapped with
// GORM and form the core data layer of the support chat service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Conversation is a named thread of messages between a user and the agents.
// It is created together with its first user message and owns its messages.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name of the person chatting (free text, not unique).
//   - Messages: chronological messages; cascade-deleted with the conversation.
//   - CreatedAt / UpdatedAt: UpdatedAt is bumped on every appended message.
type Conversation struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"      gorm:"type:varchar(255);not null;index:idx_conversation_name"`
	Messages  []Message `json:"messages"  gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"index:idx_conversation_updated"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single immutable utterance within a conversation.
//
// Fields:
//   - ConversationID: owning conversation (indexed together with CreatedAt).
//   - Role: USER or AGENT (enforced by DB constraint).
//   - AgentType: set only for AGENT messages.
type Message struct {
	ID             string     `json:"id"             gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversationId" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           Role       `json:"role"           gorm:"type:varchar(16);not null;check:chk_messages_role,role IN ('USER','AGENT')"`
	Content        string     `json:"content"        gorm:"type:text;not null"`
	AgentType      *AgentType `json:"agentType"      gorm:"type:varchar(16)"`
	CreatedAt      time.Time  `json:"createdAt"      gorm:"index:idx_conversation_msgs,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// OrderItem is one line of an order.
type OrderItem struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// Order is placed by a free-text user name and moves through OrderStatus.
// Cancellation and return metadata is written once, together with the status.
type Order struct {
	ID           string      `json:"id"                     gorm:"type:char(36);primaryKey"`
	PlacedBy     string      `json:"placedBy"               gorm:"type:varchar(255);not null;index"`
	Items        []OrderItem `json:"items"                  gorm:"type:text;not null;serializer:json"`
	Status       OrderStatus `json:"status"                 gorm:"type:varchar(16);not null;default:'PENDING';index"`
	CancelReason *string     `json:"cancelReason,omitempty" gorm:"type:text"`
	CancelledAt  *time.Time  `json:"cancelledAt,omitempty"`
	ReturnReason *string     `json:"returnReason,omitempty" gorm:"type:text"`
	ReturnedAt   *time.Time  `json:"returnedAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`

	Payments []Payment `json:"payments,omitempty" gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// Payment references exactly one order; an order may have many payments.
// Amounts are exact decimals.
type Payment struct {
	ID        string          `json:"id"        gorm:"type:char(36);primaryKey"`
	OrderID   string          `json:"orderId"   gorm:"type:char(36);not null;index"`
	Amount    decimal.Decimal `json:"amount"    gorm:"type:numeric(12,2);not null"`
	Currency  string          `json:"currency"  gorm:"type:varchar(8);not null;default:'INR'"`
	Mode      PaymentMode     `json:"mode"      gorm:"type:varchar(16);not null"`
	Status    PaymentStatus   `json:"status"    gorm:"type:varchar(16);not null;default:'PENDING';index"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	Order *Order `json:"order,omitempty" gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// AgentAction is a write-only audit record of what an agent did in a conversation.
type AgentAction struct {
	ID             string         `json:"id"             gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversationId" gorm:"type:char(36);not null;index"`
	AgentType      AgentType      `json:"agentType"      gorm:"type:varchar(16);not null"`
	Action         string         `json:"action"         gorm:"type:text;not null"`
	Metadata       map[string]any `json:"metadata"       gorm:"type:text;serializer:json"`
	CreatedAt      time.Time      `json:"createdAt"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AgentAction.
func (AgentAction) TableName() string { return "agent_actions" }
