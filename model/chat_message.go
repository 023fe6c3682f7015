package model

import (
	"time"

	"gorm.io/datatypes"
)

// MessageRole represents the role of the message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatMessage represents a single turn within a chat session. Messages are
// written once and never updated; within a session, Timestamp order is the
// canonical conversation order.
type ChatMessage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SessionID      uint           `gorm:"not null;index" json:"session_id"`
	Role           MessageRole    `gorm:"type:varchar(10);not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time      `gorm:"not null;index" json:"timestamp"`
	CharacterCount int            `gorm:"default:0" json:"character_count"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`

	// Relationships
	Session ChatSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for ChatMessage
func (ChatMessage) TableName() string {
	return "chat_messages"
}
