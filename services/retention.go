package services

import (
	"fmt"
	"log"

	"github.com/advisorop/advisorop-api/utils/lock"
)

// DefaultSessionCap is the maximum number of active non-archived sessions an
// owner may keep. Archiving is the only permanent exemption; eviction is a
// hard delete.
const DefaultSessionCap = 20

// RetentionPolicy bounds the size of each owner's active conversation set.
// Enforcement runs inside a per-owner lock so two concurrent turns cannot
// both observe an excess and over-delete.
type RetentionPolicy struct {
	sessions *SessionStore
	cap      int
	owners   *lock.KeyedMutex
}

// NewRetentionPolicy creates a retention policy with the given cap. A cap
// of zero or less falls back to DefaultSessionCap.
func NewRetentionPolicy(sessions *SessionStore, sessionCap int) *RetentionPolicy {
	if sessionCap <= 0 {
		sessionCap = DefaultSessionCap
	}
	return &RetentionPolicy{
		sessions: sessions,
		cap:      sessionCap,
		owners:   lock.NewKeyedMutex(),
	}
}

// Cap returns the configured session cap.
func (p *RetentionPolicy) Cap() int {
	return p.cap
}

// Enforce deletes the owner's oldest active non-archived sessions beyond
// the cap. protectID, when non-zero, names the session driving the current
// turn; it is ranked most recent so it never evicts itself. Re-enforcement
// after an unarchive passes zero, making the just-unarchived session a
// normal eviction candidate.
func (p *RetentionPolicy) Enforce(ownerID uint, protectID uint) (int, error) {
	unlock := p.owners.Lock(fmt.Sprintf("owner:%d", ownerID))
	defer unlock()

	deleted, err := p.sessions.DeleteOldestExcess(ownerID, p.cap, protectID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("Retention: evicted %d session(s) for owner %d", deleted, ownerID)
	}
	return deleted, nil
}
