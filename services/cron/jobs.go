package cron

import (
	"fmt"
	"time"

	"github.com/advisorop/advisorop-api/model"
)

// deactivatedRetentionDays is how long a cleared session is kept before its
// rows are purged.
const deactivatedRetentionDays = 30

// SweepRetention re-enforces the session cap for every owner currently over
// it. Turn-time enforcement already keeps owners at the cap; the sweep
// catches anything that slipped through, such as sessions unarchived while
// eviction was disabled or rows restored from a backup.
func (m *CronManager) SweepRetention() {
	jobName := "retention_sweep"

	var ownerIDs []uint
	err := m.db.Model(&model.ChatSession{}).
		Where("user_id IS NOT NULL AND is_active = ? AND is_archived = ?", true, false).
		Group("user_id").
		Having("COUNT(*) > ?", m.retention.Cap()).
		Pluck("user_id", &ownerIDs).Error
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	totalEvicted := 0
	for _, ownerID := range ownerIDs {
		deleted, err := m.retention.Enforce(ownerID, 0)
		if err != nil {
			m.logJobError(jobName, fmt.Errorf("owner %d: %w", ownerID, err))
			return
		}
		totalEvicted += deleted
	}

	m.logJobComplete(jobName, fmt.Sprintf("Checked %d owner(s), evicted %d session(s)", len(ownerIDs), totalEvicted))
}

// PurgeDeactivatedSessions hard-deletes sessions that were cleared more
// than deactivatedRetentionDays ago, together with their messages. Cleared
// sessions stay queryable for stats until then.
func (m *CronManager) PurgeDeactivatedSessions() {
	jobName := "purge_deactivated_sessions"

	cutoff := time.Now().AddDate(0, 0, -deactivatedRetentionDays)

	var sessionIDs []uint
	err := m.db.Model(&model.ChatSession{}).
		Where("is_active = ? AND updated_at < ?", false, cutoff).
		Pluck("id", &sessionIDs).Error
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	if len(sessionIDs) == 0 {
		m.logJobComplete(jobName, "No deactivated sessions past retention")
		return
	}

	tx := m.db.Begin()
	if err := tx.Where("session_id IN ?", sessionIDs).Delete(&model.ChatMessage{}).Error; err != nil {
		tx.Rollback()
		m.logJobError(jobName, err)
		return
	}
	if err := tx.Where("id IN ?", sessionIDs).Delete(&model.ChatSession{}).Error; err != nil {
		tx.Rollback()
		m.logJobError(jobName, err)
		return
	}
	if err := tx.Commit().Error; err != nil {
		m.logJobError(jobName, err)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Purged %d session(s)", len(sessionIDs)))
}
