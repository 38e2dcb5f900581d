package logging

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"gorm.io/gorm"
)

// StartCleanup deletes system_logs older than retentionDays once a day until done is closed.
func StartCleanup(db *gorm.DB, retentionDays int, done <-chan struct{}) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				purge(db, time.Now().UTC().AddDate(0, 0, -retentionDays))
			case <-done:
				return
			}
		}
	}()
}

func purge(db *gorm.DB, cutoff time.Time) {
	res := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if res.Error != nil {
		slog.Error("log cleanup failed", "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		slog.Info("log cleanup completed", "deleted", res.RowsAffected, "cutoff", cutoff)
	}
}
