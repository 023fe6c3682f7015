package services

import (
	"time"
	"unicode/utf8"

	"github.com/advisorop/advisorop-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageStore owns the chat_messages table. Messages are append-only; the
// character count is computed once at creation and never recomputed.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore creates a new message store
func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append persists one turn. The timestamp is stamped here so that, with
// per-session turns serialized by the engine, insertion order equals
// chronological order.
func (s *MessageStore) Append(sessionID uint, role model.MessageRole, content string, metadata datatypes.JSON) (*model.ChatMessage, error) {
	message := model.ChatMessage{
		SessionID:      sessionID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
		CharacterCount: utf8.RuneCountInString(content),
		Metadata:       metadata,
	}

	if err := s.db.Create(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ListOrdered returns all messages for the session in canonical
// conversation order.
func (s *MessageStore) ListOrdered(sessionID uint) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := s.db.Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Count returns the total number of messages in the session.
func (s *MessageStore) Count(sessionID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// CountByRole returns the number of messages with the given role.
func (s *MessageStore) CountByRole(sessionID uint, role model.MessageRole) (int64, error) {
	var count int64
	err := s.db.Model(&model.ChatMessage{}).
		Where("session_id = ? AND role = ?", sessionID, role).
		Count(&count).Error
	return count, err
}

// TotalCharacters sums the stored character counts across the session.
func (s *MessageStore) TotalCharacters(sessionID uint) (int64, error) {
	var total int64
	err := s.db.Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(SUM(character_count), 0)").
		Scan(&total).Error
	return total, err
}
