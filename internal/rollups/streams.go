package rollups

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// ReadingRollup is the per-hour reading activity reported by the reading
// tracker: total seconds spent reading and the subset spent in focused
// reading. Keyed by hour only; reading is tracked per account, not per
// device.
type ReadingRollup struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	HourStart      time.Time `gorm:"uniqueIndex;type:datetime;not null"`
	ActiveSeconds  float64   `gorm:"not null;default:0"`
	FocusedSeconds float64   `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WritingRollup is the per-hour writing activity: keystrokes and word
// deltas. Writing trackers report increments, so upserts are additive.
type WritingRollup struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	HourStart    time.Time `gorm:"uniqueIndex;type:datetime;not null"`
	Keystrokes   int       `gorm:"not null;default:0"`
	WordsAdded   int       `gorm:"not null;default:0"`
	WordsDeleted int       `gorm:"not null;default:0"`
	NetWords     int       `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertReadingRollups overwrites reading rollups per hour, same last
// writer wins policy as activity rollups.
func UpsertReadingRollups(logger *slog.Logger, db *gorm.DB, rollups []ReadingRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, r := range rollups {
			query := `
				INSERT INTO reading_rollups (hour_start, active_seconds, focused_seconds, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (hour_start) DO UPDATE SET
					active_seconds = excluded.active_seconds,
					focused_seconds = excluded.focused_seconds,
					updated_at = excluded.updated_at
			`
			err := tx.Exec(query, r.HourStart.UTC(), r.ActiveSeconds, r.FocusedSeconds, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to upsert reading rollup for %s: %w", r.HourStart, err)
			}
		}
		return nil
	})
}

// AccumulateWritingDeltas adds writing increments into the hour rows they
// belong to. Unlike the other rollups this merge is additive: each report
// carries only the keystrokes and words since the previous report, so
// overwriting would discard earlier increments in the same hour.
func AccumulateWritingDeltas(logger *slog.Logger, db *gorm.DB, deltas []WritingRollup) error {
	if len(deltas) == 0 {
		return nil
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, d := range deltas {
			query := `
				INSERT INTO writing_rollups (hour_start, keystrokes, words_added, words_deleted, net_words, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (hour_start) DO UPDATE SET
					keystrokes = writing_rollups.keystrokes + excluded.keystrokes,
					words_added = writing_rollups.words_added + excluded.words_added,
					words_deleted = writing_rollups.words_deleted + excluded.words_deleted,
					net_words = writing_rollups.net_words + excluded.net_words,
					updated_at = excluded.updated_at
			`
			err := tx.Exec(query, d.HourStart.UTC(), d.Keystrokes, d.WordsAdded, d.WordsDeleted,
				d.NetWords, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to accumulate writing rollup for %s: %w", d.HourStart, err)
			}
		}
		return nil
	})
}

// ReadingInRange returns reading rollups with hour_start in [from, to).
func ReadingInRange(db *gorm.DB, from, to time.Time) ([]ReadingRollup, error) {
	var rows []ReadingRollup
	err := db.Where("hour_start >= ? AND hour_start < ?", from.UTC(), to.UTC()).
		Order("hour_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query reading rollups: %w", err)
	}
	return rows, nil
}

// WritingInRange returns writing rollups with hour_start in [from, to).
func WritingInRange(db *gorm.DB, from, to time.Time) ([]WritingRollup, error) {
	var rows []WritingRollup
	err := db.Where("hour_start >= ? AND hour_start < ?", from.UTC(), to.UTC()).
		Order("hour_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query writing rollups: %w", err)
	}
	return rows, nil
}

// ActivityInRange returns activity rollups with hour_start in [from, to),
// optionally filtered by device.
func ActivityInRange(db *gorm.DB, deviceID string, from, to time.Time) ([]ActivityRollup, error) {
	query := db.Where("hour_start >= ? AND hour_start < ?", from.UTC(), to.UTC())
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	var rows []ActivityRollup
	if err := query.Order("hour_start ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query activity rollups: %w", err)
	}
	return rows, nil
}
