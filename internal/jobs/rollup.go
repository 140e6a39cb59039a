package jobs

import (
	"log/slog"
	"time"

	"attently/internal/config"
	"attently/internal/database"
	"attently/internal/intervals"
	"attently/internal/rollups"
)

// RollupJob regenerates the per-device hourly rollups over the trailing
// window so the sync endpoint always serves fresh aggregates. The window is
// deliberately wider than the job interval: re-upserting an hour is
// idempotent, and late-arriving intervals for a past hour get folded in on
// the next pass.
type RollupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewRollupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *RollupJob {
	return &RollupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run regenerates rollups for every device that reported within the window.
func (j *RollupJob) Run() error {
	db := j.dbManager.GetConnection()
	now := time.Now().UTC()
	from := now.Add(-time.Duration(j.cfg.RollupWindowHours) * time.Hour)

	devices, err := intervals.Devices(db, from)
	if err != nil {
		return err
	}

	var totalHours int
	for _, deviceID := range devices {
		generated, err := rollups.GenerateLocalRollups(db, j.logger, deviceID, from, now)
		if err != nil {
			j.logger.Error("Failed to generate rollups for device",
				slog.String("device_id", deviceID), slog.Any("error", err))
			continue
		}
		if err := rollups.UpsertRollups(j.logger, db, generated); err != nil {
			j.logger.Error("Failed to upsert rollups for device",
				slog.String("device_id", deviceID), slog.Any("error", err))
			continue
		}
		totalHours += len(generated)
	}

	j.logger.Info("Rollup generation completed",
		slog.Int("devices", len(devices)),
		slog.Int("hours_upserted", totalHours),
		slog.Int("window_hours", j.cfg.RollupWindowHours))

	return nil
}
