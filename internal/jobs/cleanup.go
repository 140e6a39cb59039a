package jobs

import (
	"log/slog"
	"time"

	"attently/internal/config"
	"attently/internal/database"
	"attently/internal/engagement"
)

// CleanupJob handles cleanup of old behavior events. Raw scroll/click/
// keystroke samples are only needed while engagement reports can still
// query them; beyond the retention window they are dead weight.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes behavior events older than the retention period.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.BehaviorEventsRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old behavior events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	// Count events to be deleted first
	var countToDelete int64
	if err := db.Model(&engagement.BehaviorEvent{}).
		Where("timestamp < ?", cutoffDate).
		Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count old behavior events", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No old behavior events to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("timestamp < ?", cutoffDate).
			Limit(batchSize).
			Delete(&engagement.BehaviorEvent{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old behavior events",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up old behavior events",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", retentionDays))

	return nil
}
