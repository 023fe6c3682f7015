package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedOwnedSessions(t *testing.T, db *gorm.DB, store *SessionStore, ownerID uint, keys []string) {
	t.Helper()

	base := time.Now().Add(-time.Hour)
	for i, key := range keys {
		session, err := store.GetOrCreate(key, &ownerID)
		require.NoError(t, err)
		require.NoError(t, db.Model(&model.ChatSession{}).
			Where("id = ?", session.ID).
			UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
}

func TestEnforceDeletesOldestBeyondCap(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	policy := NewRetentionPolicy(store, 2)
	user := createTestUser(t, db, "ret@example.com")

	seedOwnedSessions(t, db, store, user.ID, []string{"r-1", "r-2", "r-3", "r-4"})

	deleted, err := policy.Enforce(user.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetByKey("r-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetByKey("r-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetByKey("r-3")
	assert.NoError(t, err)
	_, err = store.GetByKey("r-4")
	assert.NoError(t, err)
}

func TestEnforceUnderCapIsNoop(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	policy := NewRetentionPolicy(store, 5)
	user := createTestUser(t, db, "under@example.com")

	seedOwnedSessions(t, db, store, user.ID, []string{"u-1", "u-2"})

	deleted, err := policy.Enforce(user.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestEnforceProtectsInFlightSession(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	policy := NewRetentionPolicy(store, 2)
	user := createTestUser(t, db, "inflight@example.com")

	seedOwnedSessions(t, db, store, user.ID, []string{"f-1", "f-2", "f-3"})

	oldest, err := store.GetByKey("f-1")
	require.NoError(t, err)

	// The oldest session carries the current turn; its timestamp has not
	// been bumped yet, but it must not evict itself.
	deleted, err := policy.Enforce(user.ID, oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetByKey("f-1")
	assert.NoError(t, err)
	_, err = store.GetByKey("f-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDefaultCapFallback(t *testing.T) {
	db := setupTestDB(t)
	policy := NewRetentionPolicy(NewSessionStore(db), 0)
	assert.Equal(t, DefaultSessionCap, policy.Cap())
}

func TestEnforceSerializesPerOwner(t *testing.T) {
	db := setupTestDB(t)
	store := NewSessionStore(db)
	policy := NewRetentionPolicy(store, 2)
	user := createTestUser(t, db, "serial@example.com")

	seedOwnedSessions(t, db, store, user.ID, []string{"s-1", "s-2", "s-3"})

	// Hold the owner's eviction lock; any Enforce for the same owner,
	// whichever caller it came from, must wait on it.
	unlock := policy.owners.Lock(fmt.Sprintf("owner:%d", user.ID))

	done := make(chan struct{})
	go func() {
		_, _ = policy.Enforce(user.ID, 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enforce ran while the owner lock was held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enforce did not complete after the owner lock was released")
	}
}
