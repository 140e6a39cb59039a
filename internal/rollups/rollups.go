// Package rollups maintains the pre-aggregated per-hour totals derived
// from raw activity intervals, plus the auxiliary reading and writing
// hourly streams. Activity rollups are overwritten on upsert (a full
// recompute from source is always possible); writing rollups accumulate
// deltas, since writing progress arrives as monotonic counter increments.
package rollups

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attently/internal/intervals"
	"attently/internal/settings"
	"attently/internal/timewindow"
)

// ActivityRollup is the per-device, per-hour category total.
type ActivityRollup struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	DeviceID          string    `gorm:"uniqueIndex:idx_activity_rollup_unique;not null"`
	HourStart         time.Time `gorm:"uniqueIndex:idx_activity_rollup_unique;type:datetime;not null"`
	ProductiveSeconds float64   `gorm:"not null;default:0"`
	NeutralSeconds    float64   `gorm:"not null;default:0"`
	FrivolitySeconds  float64   `gorm:"not null;default:0"`
	IdleSeconds       float64   `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GenerateLocalRollups aggregates raw intervals into one rollup per touched
// hour. Each interval is bucketed whole by the hour of its start (this path
// feeds sync, not windowed reports, so no cross-window clipping happens
// here). Suppressed and uncategorized activity lands in neutral; draining
// counts with frivolity and emergency with neutral, matching how the rollup
// schema folds five interval categories into three.
func GenerateLocalRollups(db *gorm.DB, logger *slog.Logger, deviceID string, from, to time.Time) ([]ActivityRollup, error) {
	rows, err := intervals.InRange(db, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load intervals for rollup: %w", err)
	}

	keywords := settings.GetExcludedKeywords()

	byHour := make(map[time.Time]*ActivityRollup)
	for i := range rows {
		iv := &rows[i]
		hour := timewindow.FloorToHour(iv.StartedAt)
		rollup, ok := byHour[hour]
		if !ok {
			rollup = &ActivityRollup{DeviceID: deviceID, HourStart: hour}
			byHour[hour] = rollup
		}

		category := iv.Category
		if settings.DomainSuppressed(iv.Domain, keywords) {
			category = intervals.CategoryNeutral
		}

		active := float64(iv.SecondsActive)
		switch category {
		case intervals.CategoryProductive:
			rollup.ProductiveSeconds += active
		case intervals.CategoryFrivolity, intervals.CategoryDraining:
			rollup.FrivolitySeconds += active
		default:
			// neutral, emergency, uncategorized, unknown
			rollup.NeutralSeconds += active
		}
		rollup.IdleSeconds += float64(iv.IdleSeconds)
	}

	result := make([]ActivityRollup, 0, len(byHour))
	for _, rollup := range byHour {
		result = append(result, *rollup)
	}

	logger.Debug("Generated local rollups",
		slog.String("device_id", deviceID),
		slog.Int("hours", len(result)),
		slog.Int("intervals", len(rows)))

	return result, nil
}

// UpsertRollups writes rollups inside one transaction, overwriting any
// existing (device_id, hour_start) row. Last writer wins: callers always
// derive rollups from a full recompute of the source intervals, so an
// overwrite can never lose data that an additive merge would have kept.
func UpsertRollups(logger *slog.Logger, db *gorm.DB, rollups []ActivityRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, r := range rollups {
			query := `
				INSERT INTO activity_rollups (device_id, hour_start, productive_seconds, neutral_seconds, frivolity_seconds, idle_seconds, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (device_id, hour_start) DO UPDATE SET
					productive_seconds = excluded.productive_seconds,
					neutral_seconds = excluded.neutral_seconds,
					frivolity_seconds = excluded.frivolity_seconds,
					idle_seconds = excluded.idle_seconds,
					updated_at = excluded.updated_at
			`
			err := tx.Exec(query, r.DeviceID, r.HourStart.UTC(), r.ProductiveSeconds, r.NeutralSeconds,
				r.FrivolitySeconds, r.IdleSeconds, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to upsert rollup for %s@%s: %w", r.DeviceID, r.HourStart, err)
			}
		}
		return nil
	})
}

// ListSince returns rollups updated at or after the given time, for the
// sync hand-off to peers. Ordered by update time then hour for a stable
// cursor.
func ListSince(db *gorm.DB, since time.Time) ([]ActivityRollup, error) {
	var rows []ActivityRollup
	err := db.Where("updated_at >= ?", since.UTC()).
		Order("updated_at ASC, hour_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rollups since %s: %w", since, err)
	}
	return rows, nil
}
