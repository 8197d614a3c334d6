package services

import (
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

// acquireSchedulerLock takes a short-lived lease on a named scheduled
// task. When several instances share one database, only the holder runs
// the task; an expired lease can be stolen.
func acquireSchedulerLock(db *gorm.DB, name, key, owner string, ttl time.Duration) bool {
	now := time.Now()
	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(&lock).Error; err == nil {
		return true
	}

	// Row exists. Steal it only if the previous lease expired.
	res := db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at < ?", name, key, now).
		Updates(map[string]interface{}{
			"locked_by":  owner,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	return res.Error == nil && res.RowsAffected == 1
}

// releaseSchedulerLock drops the lease if this owner still holds it.
func releaseSchedulerLock(db *gorm.DB, name, key, owner string) {
	db.Where("lock_name = ? AND lock_key = ? AND locked_by = ?", name, key, owner).
		Delete(&models.SchedulerLock{})
}

// lockOwner identifies this process for lease ownership.
func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
