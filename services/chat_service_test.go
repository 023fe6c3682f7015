package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	response string
	err      error

	calls       int
	lastTurns   []ContextTurn
	lastNewText string
	lastParams  ModelParams
}

func (g *fakeGateway) Complete(ctx context.Context, turns []ContextTurn, newUserText string, params ModelParams) (string, error) {
	g.calls++
	g.lastTurns = turns
	g.lastNewText = newUserText
	g.lastParams = params
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newTestEngine(t *testing.T, db *gorm.DB, gateway *fakeGateway) *ChatService {
	t.Helper()
	retention := NewRetentionPolicy(NewSessionStore(db), DefaultSessionCap)
	return NewChatService(db, gateway, NewAIConfigService(db, nil), retention)
}

func TestSendMessageSuccess(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "The answer is **42**."}
	engine := newTestEngine(t, db, gateway)

	result, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "turn-key",
		Content:    "what is the answer?",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "The answer is <strong>42</strong>.", result.Response)
	assert.Equal(t, "turn-key", result.SessionKey)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.MessageID)

	session, err := engine.Sessions().GetByKey("turn-key")
	require.NoError(t, err)
	assert.Equal(t, "what is the answer?", session.Title)

	messages, err := engine.Messages().ListOrdered(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, "The answer is <strong>42</strong>.", messages[1].Content)
	assert.Contains(t, string(messages[1].Metadata), DefaultModelName)
}

func TestSendMessageContextWindow(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "first answer"}
	engine := newTestEngine(t, db, gateway)

	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "ctx-key",
		Content:    "first question",
	})
	require.NoError(t, err)

	_, err = engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "ctx-key",
		Content:    "second question",
	})
	require.NoError(t, err)

	// Synthetic prompt turn, synthetic greeting, then the first exchange;
	// the new user text travels separately and is never duplicated.
	require.Len(t, gateway.lastTurns, 4)
	assert.Equal(t, TurnRoleUser, gateway.lastTurns[0].Role)
	assert.Equal(t, DefaultSystemPrompt, gateway.lastTurns[0].Text)
	assert.Equal(t, TurnRoleAssistant, gateway.lastTurns[1].Role)
	assert.Equal(t, AssistantGreeting, gateway.lastTurns[1].Text)
	assert.Equal(t, "first question", gateway.lastTurns[2].Text)
	assert.Equal(t, "first answer", gateway.lastTurns[3].Text)
	assert.Equal(t, "second question", gateway.lastNewText)
}

func TestSendMessageUsesActiveProfile(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&model.AIConfig{
		Name:         "custom",
		ModelName:    "gpt-4o",
		SystemPrompt: "You are terse.",
		MaxTokens:    256,
		Temperature:  0.2,
		IsActive:     true,
	}).Error)

	gateway := &fakeGateway{response: "ok"}
	engine := newTestEngine(t, db, gateway)

	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "profile-key",
		Content:    "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", gateway.lastParams.Model)
	assert.Equal(t, 256, gateway.lastParams.MaxTokens)
	assert.InDelta(t, 0.2, gateway.lastParams.Temperature, 0.001)
	assert.Equal(t, "You are terse.", gateway.lastTurns[0].Text)
}

func TestSendMessageGatewayFailure(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "fine"}
	engine := newTestEngine(t, db, gateway)

	// Establish the session with a successful turn first
	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "fail-key",
		Content:    "works",
	})
	require.NoError(t, err)

	before, err := engine.Sessions().GetByKey("fail-key")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	gateway.err = fmt.Errorf("connection refused")

	result, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "fail-key",
		Content:    "broken turn",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Nil(t, result.MessageID)
	assert.Equal(t, "connection refused", result.Error)
	assert.Equal(t, "Error: connection refused - Could not get response from AI.", result.Response)

	// Both the user message and the error message are in the log
	messages, err := engine.Messages().ListOrdered(before.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "broken turn", messages[2].Content)
	assert.Equal(t, model.MessageRoleAssistant, messages[3].Role)
	assert.Equal(t, result.Response, messages[3].Content)

	// The session timestamp is unchanged from before the failed turn
	after, err := engine.Sessions().GetByKey("fail-key")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt.UnixNano(), after.UpdatedAt.UnixNano())
}

func TestSendMessageEvictsBeyondCap(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "ok"}
	engine := newTestEngine(t, db, gateway)
	user := createTestUser(t, db, "heavy@example.com")

	// One anonymous session created first; the cap never applies to it
	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "anon-bystander",
		Content:    "hello",
	})
	require.NoError(t, err)

	total := DefaultSessionCap + 3
	for i := 0; i < total; i++ {
		_, err := engine.SendMessage(context.Background(), SendMessageRequest{
			SessionKey: fmt.Sprintf("owned-%03d", i),
			Content:    "hello",
			OwnerID:    &user.ID,
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&model.ChatSession{}).
		Where("user_id = ?", user.ID).
		Count(&count).Error)
	assert.EqualValues(t, DefaultSessionCap, count)

	// The oldest three owned sessions were evicted, in age order
	for i := 0; i < 3; i++ {
		_, err := engine.Sessions().GetByKey(fmt.Sprintf("owned-%03d", i))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	}
	_, err = engine.Sessions().GetByKey(fmt.Sprintf("owned-%03d", total-1))
	assert.NoError(t, err)

	_, err = engine.Sessions().GetByKey("anon-bystander")
	assert.NoError(t, err)
}

func TestSendMessageUsesInjectedRetentionPolicy(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "ok"}
	policy := NewRetentionPolicy(NewSessionStore(db), 2)
	engine := NewChatService(db, gateway, NewAIConfigService(db, nil), policy)
	user := createTestUser(t, db, "injected@example.com")

	for i := 0; i < 4; i++ {
		_, err := engine.SendMessage(context.Background(), SendMessageRequest{
			SessionKey: fmt.Sprintf("inj-%d", i),
			Content:    "hello",
			OwnerID:    &user.ID,
		})
		require.NoError(t, err)
	}

	// The shared policy's cap governs turn-time eviction, not a default
	// built inside the engine.
	var count int64
	require.NoError(t, db.Model(&model.ChatSession{}).
		Where("user_id = ?", user.ID).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestClearIdempotent(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "ok"}
	engine := newTestEngine(t, db, gateway)

	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "clear-key",
		Content:    "hello",
	})
	require.NoError(t, err)

	require.NoError(t, engine.Clear("clear-key"))
	assert.ErrorIs(t, engine.Clear("clear-key"), ErrSessionNotFound)
	assert.ErrorIs(t, engine.Clear("never-seen"), ErrSessionNotFound)
}

func TestUnarchiveReenforcesCap(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	gateway := &fakeGateway{response: "ok"}
	engine := newTestEngine(t, db, gateway)
	user := createTestUser(t, db, "unarch@example.com")

	// Archived session with the oldest timestamp
	archived, err := store.GetOrCreate("arch-oldest", &user.ID)
	require.NoError(t, err)
	_, err = store.SetArchived("arch-oldest", true, &user.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.ChatSession{}).
		Where("id = ?", archived.ID).
		UpdateColumn("updated_at", time.Now().Add(-24*time.Hour)).Error)

	// Fill the owner to the cap
	for i := 0; i < DefaultSessionCap; i++ {
		_, err := engine.SendMessage(context.Background(), SendMessageRequest{
			SessionKey: fmt.Sprintf("full-%03d", i),
			Content:    "hello",
			OwnerID:    &user.ID,
		})
		require.NoError(t, err)
	}

	// Unarchiving makes it count again; being the oldest of the now
	// cap+1 candidates, it is evicted immediately.
	require.NoError(t, engine.Unarchive("arch-oldest", &user.ID))

	_, err = store.GetByKey("arch-oldest")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var count int64
	require.NoError(t, db.Model(&model.ChatSession{}).
		Where("user_id = ? AND is_active = ? AND is_archived = ?", user.ID, true, false).
		Count(&count).Error)
	assert.EqualValues(t, DefaultSessionCap, count)
}

func TestHistoryAndStats(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "an answer"}
	engine := newTestEngine(t, db, gateway)

	_, err := engine.SendMessage(context.Background(), SendMessageRequest{
		SessionKey: "hs-key",
		Content:    "a question",
	})
	require.NoError(t, err)

	entries, err := engine.History("hs-key")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a question", entries[0].Text)
	assert.True(t, entries[0].IsUser)
	assert.Equal(t, "an answer", entries[1].Text)
	assert.False(t, entries[1].IsUser)
	assert.Regexp(t, `^\d{2}:\d{2}$`, entries[0].Timestamp)

	stats, err := engine.Stats("hs-key")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalMessages)
	assert.EqualValues(t, 1, stats.UserMessages)
	assert.EqualValues(t, 1, stats.AssistantMessages)
	assert.EqualValues(t, len("a question")+len("an answer"), stats.TotalCharacters)

	// History refuses deactivated sessions; stats still sees them
	require.NoError(t, engine.Clear("hs-key"))
	_, err = engine.History("hs-key")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = engine.Stats("hs-key")
	assert.NoError(t, err)
}

func TestListSessionsSummaries(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{response: "ok"}
	engine := newTestEngine(t, db, gateway)
	user := createTestUser(t, db, "summary@example.com")

	for _, key := range []string{"s-1", "s-2"} {
		_, err := engine.SendMessage(context.Background(), SendMessageRequest{
			SessionKey: key,
			Content:    "message for " + key,
			OwnerID:    &user.ID,
		})
		require.NoError(t, err)
	}
	require.NoError(t, engine.Archive("s-1", &user.ID))

	active, err := engine.ListSessions(user.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-2", active[0].SessionKey)
	assert.Equal(t, "message for s-2", active[0].Title)
	assert.EqualValues(t, 2, active[0].MessageCount)

	all, err := engine.ListSessions(user.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
