package model

import (
	"time"
)

// ChatSession represents one conversation, identified by an opaque session key.
// Sessions are soft-ended by flipping IsActive off; retention eviction hard
// deletes the row together with its messages.
type ChatSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionKey string    `gorm:"type:varchar(40);uniqueIndex;not null" json:"session_key"`
	UserID     *uint     `gorm:"index" json:"user_id,omitempty"`
	Title      string    `gorm:"type:varchar(200)" json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	IsActive   bool      `gorm:"default:true;index" json:"is_active"`
	IsArchived bool      `gorm:"default:false" json:"is_archived"`

	// Relationships
	User     *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for ChatSession
func (ChatSession) TableName() string {
	return "chat_sessions"
}
