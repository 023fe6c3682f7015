package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"gorm.io/gorm"
)

// TitleLimit is the maximum number of characters kept when deriving a
// session title from its first user message.
const TitleLimit = 50

// SessionStore owns the chat_sessions table: lifecycle flags, title
// bookkeeping, and the retention delete primitive.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// GetOrCreate returns the active session matching key, creating one when
// none exists. The session_key unique index is the authority on uniqueness:
// if a concurrent caller wins the insert race, the create fails and the
// winner's row is returned instead.
func (s *SessionStore) GetOrCreate(key string, ownerID *uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.Where("session_key = ? AND is_active = ?", key, true).First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	session = model.ChatSession{
		SessionKey: key,
		UserID:     ownerID,
		IsActive:   true,
		IsArchived: false,
	}
	if createErr := s.db.Create(&session).Error; createErr != nil {
		// The unique index on session_key rejected the insert: either a
		// concurrent caller won the race, or the key belongs to a
		// deactivated session. Converge on the stored row in the first
		// case; a deactivated key is a dead end and reads as not found.
		var existing model.ChatSession
		if retryErr := s.db.Where("session_key = ?", key).
			First(&existing).Error; retryErr == nil {
			if !existing.IsActive {
				return nil, ErrSessionNotFound
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create session: %w", createErr)
	}

	return &session, nil
}

// Touch advances the session's updated_at to now. UpdateColumn bypasses
// GORM's automatic timestamp handling so nothing else moves it.
func (s *SessionStore) Touch(sessionID uint) error {
	return s.db.Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		UpdateColumn("updated_at", time.Now()).Error
}

// TruncateTitle derives a display title from message text: the first
// TitleLimit characters, with an ellipsis marker when truncated.
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleLimit {
		return text
	}
	return string(runes[:TitleLimit]) + "..."
}

// SetTitleIfUnset persists a derived title from candidateText, once. A
// session that already has a title is left untouched; updated_at is not
// bumped by this write.
func (s *SessionStore) SetTitleIfUnset(session *model.ChatSession, candidateText string) error {
	if session.Title != "" {
		return nil
	}

	title := TruncateTitle(candidateText)
	err := s.db.Model(&model.ChatSession{}).
		Where("id = ? AND (title = '' OR title IS NULL)", session.ID).
		UpdateColumn("title", title).Error
	if err != nil {
		return err
	}

	session.Title = title
	return nil
}

// GetTitle returns the session's display title. When no title has been
// persisted, a fallback is derived on read from the first user message, or
// the default literal when the session has no user messages yet. The
// fallback is never written back by this path.
func (s *SessionStore) GetTitle(session *model.ChatSession) string {
	if session.Title != "" {
		return session.Title
	}

	var first model.ChatMessage
	err := s.db.Where("session_id = ? AND role = ?", session.ID, model.MessageRoleUser).
		Order("timestamp ASC, id ASC").
		First(&first).Error
	if err != nil {
		return "New Chat"
	}

	return TruncateTitle(first.Content)
}

// Deactivate logically ends the session matching key. Deactivation is a
// dead-end state: the row remains but no lookup path reaches it again.
// Returns ErrSessionNotFound if the key has no active session.
func (s *SessionStore) Deactivate(key string) error {
	result := s.db.Model(&model.ChatSession{}).
		Where("session_key = ? AND is_active = ?", key, true).
		UpdateColumn("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetArchived flips the archived flag on the active session matching key.
// When ownerID is present it must match the session's owner.
func (s *SessionStore) SetArchived(key string, archived bool, ownerID *uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.Where("session_key = ? AND is_active = ?", key, true).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if ownerID != nil {
		if session.UserID == nil || *session.UserID != *ownerID {
			return nil, ErrForbidden
		}
	}

	if err := s.db.Model(&session).UpdateColumn("is_archived", archived).Error; err != nil {
		return nil, err
	}
	session.IsArchived = archived

	return &session, nil
}

// ListForOwner returns the owner's active sessions, most recently updated
// first, optionally filtered to non-archived ones.
func (s *SessionStore) ListForOwner(ownerID uint, includeArchived bool) ([]model.ChatSession, error) {
	query := s.db.Where("user_id = ? AND is_active = ?", ownerID, true)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}

	var sessions []model.ChatSession
	if err := query.Order("updated_at DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetActiveByKey returns the active session matching key. Deactivated
// sessions are invisible here, so a cleared key reads as not found.
func (s *SessionStore) GetActiveByKey(key string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.Where("session_key = ? AND is_active = ?", key, true).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetByKey returns the session matching key regardless of lifecycle state.
// Statistics lookups intentionally see deactivated sessions.
func (s *SessionStore) GetByKey(key string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.Where("session_key = ?", key).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// DeleteOldestExcess hard-deletes the owner's active non-archived sessions
// beyond rank keepCount by updated_at, together with their messages. Ties on
// updated_at are broken so the lowest ids are evicted first. protectID, when
// non-zero, ranks that session most recent regardless of its updated_at: the
// session driving the current turn must never evict itself mid-turn, since
// its timestamp is only bumped after the model call succeeds. Returns the
// number of sessions deleted.
func (s *SessionStore) DeleteOldestExcess(ownerID uint, keepCount int, protectID uint) (int, error) {
	var ids []uint
	err := s.db.Model(&model.ChatSession{}).
		Where("user_id = ? AND is_active = ? AND is_archived = ?", ownerID, true, false).
		Order("updated_at DESC, id DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	if protectID != 0 {
		ranked := make([]uint, 0, len(ids))
		ranked = append(ranked, protectID)
		for _, id := range ids {
			if id != protectID {
				ranked = append(ranked, id)
			}
		}
		ids = ranked
	}

	if len(ids) <= keepCount {
		return 0, nil
	}
	victims := ids[keepCount:]

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", victims).
			Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", victims).
			Delete(&model.ChatSession{}).Error
	})
	if err != nil {
		return 0, err
	}

	return len(victims), nil
}
