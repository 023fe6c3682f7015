package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"github.com/advisorop/advisorop-api/utils/lock"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// timestampLayout is the wall-clock format surfaced to clients.
const timestampLayout = "15:04"

// DefaultGatewayTimeout bounds a single completion call so a stalled
// provider cannot hold the per-session lock indefinitely.
const DefaultGatewayTimeout = 60 * time.Second

// ChatService orchestrates one conversation turn end to end: session
// resolution, user-turn persistence, retention enforcement, history
// assembly, the model call, and result persistence. All state lives in the
// stores; the service itself only holds locks for the duration of a turn.
type ChatService struct {
	db             *gorm.DB
	sessions       *SessionStore
	messages       *MessageStore
	retention      *RetentionPolicy
	profiles       *AIConfigService
	gateway        CompletionGateway
	locks          *lock.KeyedMutex
	gatewayTimeout time.Duration
}

// NewChatService creates a new chat service. The gateway is injected so it
// can be swapped for a test double. The retention policy is injected rather
// than owned: every enforcement path in the process (turn-time, unarchive,
// the cron sweep) must go through the same instance so per-owner eviction
// is serialized by one set of locks.
func NewChatService(db *gorm.DB, gateway CompletionGateway, profiles *AIConfigService, retention *RetentionPolicy) *ChatService {
	return &ChatService{
		db:             db,
		sessions:       NewSessionStore(db),
		messages:       NewMessageStore(db),
		retention:      retention,
		profiles:       profiles,
		gateway:        gateway,
		locks:          lock.NewKeyedMutex(),
		gatewayTimeout: DefaultGatewayTimeout,
	}
}

// SetGatewayTimeout overrides the completion call deadline.
func (s *ChatService) SetGatewayTimeout(d time.Duration) {
	if d > 0 {
		s.gatewayTimeout = d
	}
}

// Sessions exposes the underlying session store.
func (s *ChatService) Sessions() *SessionStore {
	return s.sessions
}

// Messages exposes the underlying message store.
func (s *ChatService) Messages() *MessageStore {
	return s.messages
}

// NewSessionKey generates a fresh opaque session key.
func NewSessionKey() string {
	return uuid.New().String()
}

// SendMessageRequest represents one inbound user turn.
type SendMessageRequest struct {
	SessionKey string
	Content    string
	OwnerID    *uint
}

// SendMessageResult is the outcome of a turn. On gateway failure Success is
// false and Response carries the persisted error text; MessageID is only set
// for a successful assistant message.
type SendMessageResult struct {
	Response   string `json:"response"`
	Timestamp  string `json:"timestamp"`
	SessionKey string `json:"session_key"`
	MessageID  *uint  `json:"message_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// SendMessage runs one conversation turn. Store errors abort the turn and
// propagate; gateway errors are converted into a persisted assistant-role
// error message and a failure result, with the session's updated_at left
// untouched. Turns for the same session key are serialized for the whole
// call.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	unlock := s.locks.Lock("session:" + req.SessionKey)
	defer unlock()

	session, err := s.sessions.GetOrCreate(req.SessionKey, req.OwnerID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.messages.Append(session.ID, model.MessageRoleUser, req.Content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	if err := s.sessions.SetTitleIfUnset(session, req.Content); err != nil {
		return nil, fmt.Errorf("failed to set session title: %w", err)
	}

	// The cap only applies to owned sessions; anonymous ones are exempt.
	if session.UserID != nil {
		if _, err := s.retention.Enforce(*session.UserID, session.ID); err != nil {
			return nil, fmt.Errorf("failed to enforce retention: %w", err)
		}
	}

	profile, err := s.profiles.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active profile: %w", err)
	}

	stored, err := s.messages.ListOrdered(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation history: %w", err)
	}

	// The just-persisted user turn travels separately as the final turn.
	prior := make([]model.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		if msg.ID != userMsg.ID {
			prior = append(prior, msg)
		}
	}
	history := BuildHistory(profile.SystemPrompt, AssistantGreeting, prior)

	params := ModelParams{
		Model:       profile.ModelName,
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	startTime := time.Now()
	text, gatewayErr := s.gateway.Complete(gatewayCtx, history, req.Content, params)
	if gatewayErr != nil {
		return s.failTurn(session, req.SessionKey, gatewayErr)
	}
	responseTime := time.Since(startTime).Milliseconds()

	formatted := FormatAssistantText(text)

	metadata, _ := json.Marshal(map[string]interface{}{
		"model":            profile.ModelName,
		"response_time_ms": responseTime,
	})

	assistantMsg, err := s.messages.Append(session.ID, model.MessageRoleAssistant, formatted, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	if err := s.sessions.Touch(session.ID); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return &SendMessageResult{
		Response:   formatted,
		Timestamp:  assistantMsg.Timestamp.Format(timestampLayout),
		SessionKey: req.SessionKey,
		MessageID:  &assistantMsg.ID,
		Success:    true,
	}, nil
}

// failTurn records a gateway failure as an assistant-role message so the
// conversation log is self-documenting, and returns a non-fatal failure
// result. The session timestamp is deliberately not bumped.
func (s *ChatService) failTurn(session *model.ChatSession, sessionKey string, gatewayErr error) (*SendMessageResult, error) {
	log.Printf("Gateway error for session %s: %v", sessionKey, gatewayErr)

	errorText := fmt.Sprintf("Error: %v - Could not get response from AI.", gatewayErr)
	if _, err := s.messages.Append(session.ID, model.MessageRoleAssistant, errorText, nil); err != nil {
		return nil, fmt.Errorf("failed to save error message: %w", err)
	}

	return &SendMessageResult{
		Response:   errorText,
		Timestamp:  time.Now().Format(timestampLayout),
		SessionKey: sessionKey,
		MessageID:  nil,
		Success:    false,
		Error:      gatewayErr.Error(),
	}, nil
}

// Clear deactivates the session for key. Clearing an already-inactive or
// unknown key returns ErrSessionNotFound; callers treat that as non-fatal.
func (s *ChatService) Clear(key string) error {
	unlock := s.locks.Lock("session:" + key)
	defer unlock()

	return s.sessions.Deactivate(key)
}

// Archive exempts the session from retention eviction permanently.
func (s *ChatService) Archive(key string, ownerID *uint) error {
	unlock := s.locks.Lock("session:" + key)
	defer unlock()

	_, err := s.sessions.SetArchived(key, true, ownerID)
	return err
}

// Unarchive puts the session back under the retention cap and immediately
// re-enforces it, so the cap invariant holds even if the owner is already
// full. The just-unarchived session competes on its own timestamp and may
// itself be the one evicted.
func (s *ChatService) Unarchive(key string, ownerID *uint) error {
	unlock := s.locks.Lock("session:" + key)
	defer unlock()

	session, err := s.sessions.SetArchived(key, false, ownerID)
	if err != nil {
		return err
	}

	if session.UserID != nil {
		if _, err := s.retention.Enforce(*session.UserID, 0); err != nil {
			return fmt.Errorf("failed to enforce retention: %w", err)
		}
	}

	return nil
}

// HistoryEntry is one message as surfaced by the history endpoint.
type HistoryEntry struct {
	Text      string `json:"text"`
	IsUser    bool   `json:"is_user"`
	Timestamp string `json:"timestamp"`
}

// History returns the conversation for an active session in canonical
// order. Deactivated sessions are unreachable here.
func (s *ChatService) History(key string) ([]HistoryEntry, error) {
	session, err := s.sessions.GetActiveByKey(key)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListOrdered(session.ID)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, HistoryEntry{
			Text:      msg.Content,
			IsUser:    msg.Role == model.MessageRoleUser,
			Timestamp: msg.Timestamp.Format(timestampLayout),
		})
	}

	return entries, nil
}

// SessionSummary is one row of the per-owner session list.
type SessionSummary struct {
	SessionKey   string    `json:"session_key"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsArchived   bool      `json:"is_archived"`
	MessageCount int64     `json:"message_count"`
}

// ListSessions returns the owner's active sessions with derived titles,
// most recently updated first.
func (s *ChatService) ListSessions(ownerID uint, includeArchived bool) ([]SessionSummary, error) {
	sessions, err := s.sessions.ListForOwner(ownerID, includeArchived)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for i := range sessions {
		session := &sessions[i]
		count, err := s.messages.Count(session.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, SessionSummary{
			SessionKey:   session.SessionKey,
			Title:        s.sessions.GetTitle(session),
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
			IsArchived:   session.IsArchived,
			MessageCount: count,
		})
	}

	return summaries, nil
}

// SessionStats holds aggregate statistics for one session.
type SessionStats struct {
	TotalMessages     int64     `json:"total_messages"`
	UserMessages      int64     `json:"user_messages"`
	AssistantMessages int64     `json:"assistant_messages"`
	TotalCharacters   int64     `json:"total_characters"`
	SessionDuration   float64   `json:"session_duration"`
	LastActivity      time.Time `json:"last_activity"`
}

// Stats returns statistics for the session matching key. Unlike history,
// stats lookups see sessions in any lifecycle state.
func (s *ChatService) Stats(key string) (*SessionStats, error) {
	session, err := s.sessions.GetByKey(key)
	if err != nil {
		return nil, err
	}

	total, err := s.messages.Count(session.ID)
	if err != nil {
		return nil, err
	}
	userCount, err := s.messages.CountByRole(session.ID, model.MessageRoleUser)
	if err != nil {
		return nil, err
	}
	assistantCount, err := s.messages.CountByRole(session.ID, model.MessageRoleAssistant)
	if err != nil {
		return nil, err
	}
	characters, err := s.messages.TotalCharacters(session.ID)
	if err != nil {
		return nil, err
	}

	return &SessionStats{
		TotalMessages:     total,
		UserMessages:      userCount,
		AssistantMessages: assistantCount,
		TotalCharacters:   characters,
		SessionDuration:   time.Since(session.CreatedAt).Seconds(),
		LastActivity:      session.UpdatedAt,
	}, nil
}
