package services

import (
	"strings"
	"testing"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGetOrCreateNewAndExisting(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	created, err := store.GetOrCreate("key-1", nil)
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.False(t, created.IsArchived)
	assert.Empty(t, created.Title)
	assert.Nil(t, created.UserID)

	again, err := store.GetOrCreate("key-1", nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.ChatSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateSetsOwner(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	user := createTestUser(t, db, "owner@example.com")

	session, err := store.GetOrCreate("key-owned", &user.ID)
	require.NoError(t, err)
	require.NotNil(t, session.UserID)
	assert.Equal(t, user.ID, *session.UserID)
}

func TestGetOrCreateDeactivatedKeyIsDeadEnd(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	_, err := store.GetOrCreate("key-cleared", nil)
	require.NoError(t, err)
	require.NoError(t, store.Deactivate("key-cleared"))

	_, err = store.GetOrCreate("key-cleared", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetOrCreateConvergesOnInsertRace(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	// Sneak a concurrent caller's insert in between the lookup and the
	// insert, so the unique index on session_key rejects ours.
	var raced bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").
		Register("session_race_winner", func(tx *gorm.DB) {
			if raced {
				return
			}
			raced = true
			winner := model.ChatSession{SessionKey: "contested", IsActive: true}
			require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(&winner).Error)
		}))

	session, err := store.GetOrCreate("contested", nil)
	require.NoError(t, err)
	require.True(t, raced)
	assert.True(t, session.IsActive)

	var winner model.ChatSession
	require.NoError(t, db.Where("session_key = ?", "contested").First(&winner).Error)
	assert.Equal(t, winner.ID, session.ID)

	var count int64
	require.NoError(t, db.Model(&model.ChatSession{}).
		Where("session_key = ?", "contested").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short message", TruncateTitle("short message"))

	exact := strings.Repeat("a", TitleLimit)
	assert.Equal(t, exact, TruncateTitle(exact))

	long := strings.Repeat("a", TitleLimit+10)
	assert.Equal(t, strings.Repeat("a", TitleLimit)+"...", TruncateTitle(long))

	// Multi-byte runes count as single characters
	unicodeText := strings.Repeat("é", TitleLimit+1)
	assert.Equal(t, strings.Repeat("é", TitleLimit)+"...", TruncateTitle(unicodeText))
}

func TestSetTitleIfUnsetOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	session, err := store.GetOrCreate("key-title", nil)
	require.NoError(t, err)

	require.NoError(t, store.SetTitleIfUnset(session, "first message"))
	assert.Equal(t, "first message", session.Title)

	require.NoError(t, store.SetTitleIfUnset(session, "second message"))

	var stored model.ChatSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.Equal(t, "first message", stored.Title)
}

func TestSetTitleIfUnsetDoesNotBumpUpdatedAt(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	session, err := store.GetOrCreate("key-title-ts", nil)
	require.NoError(t, err)

	var before model.ChatSession
	require.NoError(t, db.First(&before, session.ID).Error)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.SetTitleIfUnset(session, "a title"))

	var after model.ChatSession
	require.NoError(t, db.First(&after, session.ID).Error)
	assert.Equal(t, before.UpdatedAt.UnixNano(), after.UpdatedAt.UnixNano())
}

func TestGetTitleFallback(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	messages := NewMessageStore(db)

	session, err := store.GetOrCreate("key-derive", nil)
	require.NoError(t, err)

	// No user messages yet
	assert.Equal(t, "New Chat", store.GetTitle(session))

	_, err = messages.Append(session.ID, model.MessageRoleUser, "hello there", nil)
	require.NoError(t, err)

	// Derived on read, never written back
	assert.Equal(t, "hello there", store.GetTitle(session))
	var stored model.ChatSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.Empty(t, stored.Title)

	// A persisted title wins over derivation
	require.NoError(t, store.SetTitleIfUnset(session, "persisted"))
	assert.Equal(t, "persisted", store.GetTitle(session))
}

func TestDeactivateIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	_, err := store.GetOrCreate("key-clear", nil)
	require.NoError(t, err)

	require.NoError(t, store.Deactivate("key-clear"))

	// Already inactive reports not found without altering rows
	err = store.Deactivate("key-clear")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = store.Deactivate("never-existed")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSetArchivedOwnership(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	owner := createTestUser(t, db, "a@example.com")
	stranger := createTestUser(t, db, "b@example.com")

	_, err := store.GetOrCreate("key-arch", &owner.ID)
	require.NoError(t, err)

	_, err = store.SetArchived("missing", true, &owner.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.SetArchived("key-arch", true, &stranger.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	session, err := store.SetArchived("key-arch", true, &owner.ID)
	require.NoError(t, err)
	assert.True(t, session.IsArchived)

	session, err = store.SetArchived("key-arch", false, &owner.ID)
	require.NoError(t, err)
	assert.False(t, session.IsArchived)
}

func TestListForOwnerOrderAndFilter(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	user := createTestUser(t, db, "list@example.com")

	base := time.Now().Add(-time.Hour)
	for i, key := range []string{"list-1", "list-2", "list-3"} {
		session, err := store.GetOrCreate(key, &user.ID)
		require.NoError(t, err)
		require.NoError(t, db.Model(&model.ChatSession{}).
			Where("id = ?", session.ID).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	_, err := store.SetArchived("list-2", true, &user.ID)
	require.NoError(t, err)

	active, err := store.ListForOwner(user.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "list-3", active[0].SessionKey)
	assert.Equal(t, "list-1", active[1].SessionKey)

	all, err := store.ListForOwner(user.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteOldestExcess(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	messages := NewMessageStore(db)
	user := createTestUser(t, db, "cap@example.com")

	base := time.Now().Add(-time.Hour)
	keys := []string{"cap-1", "cap-2", "cap-3", "cap-4", "cap-5"}
	sessionIDs := make(map[string]uint, len(keys))
	for i, key := range keys {
		session, err := store.GetOrCreate(key, &user.ID)
		require.NoError(t, err)
		sessionIDs[key] = session.ID
		_, err = messages.Append(session.ID, model.MessageRoleUser, "hi", nil)
		require.NoError(t, err)
		require.NoError(t, db.Model(&model.ChatSession{}).
			Where("id = ?", session.ID).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	deleted, err := store.DeleteOldestExcess(user.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// The two oldest are gone, messages included
	for _, key := range []string{"cap-1", "cap-2"} {
		_, err := store.GetByKey(key)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		count, err := messages.Count(sessionIDs[key])
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	}
	for _, key := range []string{"cap-3", "cap-4", "cap-5"} {
		_, err := store.GetByKey(key)
		assert.NoError(t, err)
	}

	// No excess left
	deleted, err = store.DeleteOldestExcess(user.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestDeleteOldestExcessProtectsSession(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	user := createTestUser(t, db, "protect@example.com")

	base := time.Now().Add(-time.Hour)
	var oldestID uint
	for i, key := range []string{"p-1", "p-2", "p-3", "p-4"} {
		session, err := store.GetOrCreate(key, &user.ID)
		require.NoError(t, err)
		if key == "p-1" {
			oldestID = session.ID
		}
		require.NoError(t, db.Model(&model.ChatSession{}).
			Where("id = ?", session.ID).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	// The oldest session is the one mid-turn: it must survive, and the
	// next-oldest is evicted instead.
	deleted, err := store.DeleteOldestExcess(user.ID, 3, oldestID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetByKey("p-1")
	assert.NoError(t, err)
	_, err = store.GetByKey("p-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArchivedAndAnonymousExemptFromEviction(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	user := createTestUser(t, db, "exempt@example.com")

	base := time.Now().Add(-time.Hour)
	for i, key := range []string{"e-1", "e-2", "e-3"} {
		session, err := store.GetOrCreate(key, &user.ID)
		require.NoError(t, err)
		require.NoError(t, db.Model(&model.ChatSession{}).
			Where("id = ?", session.ID).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	_, err := store.SetArchived("e-1", true, &user.ID)
	require.NoError(t, err)

	// Anonymous session for good measure; separate owner scope entirely
	_, err = store.GetOrCreate("anon", nil)
	require.NoError(t, err)

	deleted, err := store.DeleteOldestExcess(user.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	for _, key := range []string{"e-1", "e-2", "e-3", "anon"} {
		_, err := store.GetByKey(key)
		assert.NoError(t, err, key)
	}
}

func TestGetByKeySeesDeactivated(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)

	_, err := store.GetOrCreate("key-stats", nil)
	require.NoError(t, err)
	require.NoError(t, store.Deactivate("key-stats"))

	session, err := store.GetByKey("key-stats")
	require.NoError(t, err)
	assert.False(t, session.IsActive)

	_, err = store.GetActiveByKey("key-stats")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
