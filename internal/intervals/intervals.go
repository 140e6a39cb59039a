// Package intervals stores the raw foreground-activity intervals reported
// by tracker agents and exposes the range queries the analytics engine
// pulls from. An interval is a half-open span [StartedAt, EndedAt); an
// interval with no end is still open and its effective end is derived from
// its accumulated seconds.
package intervals

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Activity categories assigned by the tracker.
const (
	CategoryProductive = "productive"
	CategoryNeutral    = "neutral"
	CategoryFrivolity  = "frivolity"
	CategoryDraining   = "draining"
	CategoryEmergency  = "emergency"
)

// KnownCategory reports whether the tracker-supplied category is one the
// engine understands. Unknown or empty categories aggregate as neutral.
func KnownCategory(category string) bool {
	switch category {
	case CategoryProductive, CategoryNeutral, CategoryFrivolity, CategoryDraining, CategoryEmergency:
		return true
	}
	return false
}

// ActivityInterval represents one continuous tracked activity on a device:
// a browser domain or desktop app held in the foreground.
type ActivityInterval struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	DeviceID      string     `gorm:"index:idx_interval_device_started;not null"`
	Domain        string     `gorm:"index;not null"`
	Category      string     `gorm:"index"`
	StartedAt     time.Time  `gorm:"index:idx_interval_device_started;not null"`
	EndedAt       *time.Time `gorm:"index"`
	SecondsActive int        `gorm:"not null;default:0"`
	IdleSeconds   int        `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

// EffectiveEnd returns EndedAt, or for a still-open interval the end implied
// by its accumulated active and idle seconds.
func (iv *ActivityInterval) EffectiveEnd() time.Time {
	if iv.EndedAt != nil {
		return *iv.EndedAt
	}
	return iv.StartedAt.Add(time.Duration(iv.SecondsActive+iv.IdleSeconds) * time.Second)
}

// TotalSeconds returns the interval's full span in seconds.
func (iv *ActivityInterval) TotalSeconds() int {
	return iv.SecondsActive + iv.IdleSeconds
}

// Valid reports whether the interval carries usable timestamps and
// non-negative counters. Invalid rows are skipped, never fatal.
func (iv *ActivityInterval) Valid() bool {
	if iv.StartedAt.IsZero() {
		return false
	}
	if iv.SecondsActive < 0 || iv.IdleSeconds < 0 {
		return false
	}
	if iv.EndedAt != nil && iv.EndedAt.Before(iv.StartedAt) {
		return false
	}
	return true
}

// InRange returns all intervals overlapping [from, to), ordered by start
// time ascending. Open intervals are included when their effective end
// reaches into the range; because the effective end is derived in Go, the
// SQL filter is widened by the maximum plausible open-interval length and
// the precise check happens after scanning.
func InRange(db *gorm.DB, deviceID string, from, to time.Time) ([]ActivityInterval, error) {
	query := rangeQuery(db, from, to)
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	return scanRange(query, from)
}

// DomainInRange is InRange restricted to a single domain, so per-domain
// consumers never scan the other domains' history.
func DomainInRange(db *gorm.DB, domain string, from, to time.Time) ([]ActivityInterval, error) {
	return scanRange(rangeQuery(db, from, to).Where("domain = ?", domain), from)
}

func rangeQuery(db *gorm.DB, from, to time.Time) *gorm.DB {
	// No tracker heartbeat runs longer than a day; anything older with a
	// NULL end is a crashed session and carries its seconds instead.
	openHorizon := from.Add(-24 * time.Hour)

	return db.Where(
		"started_at < ? AND (ended_at > ? OR (ended_at IS NULL AND started_at > ?))",
		to.UTC(), from.UTC(), openHorizon.UTC(),
	)
}

func scanRange(query *gorm.DB, from time.Time) ([]ActivityInterval, error) {
	var rows []ActivityInterval
	if err := query.Order("started_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query intervals in range: %w", err)
	}

	result := rows[:0]
	for _, iv := range rows {
		if !iv.Valid() {
			continue
		}
		if iv.EffectiveEnd().After(from) {
			result = append(result, iv)
		}
	}
	return result, nil
}

// CollectIntervalInput is one interval as reported by the agent, with the
// timestamps still in wire form so a bad row can be rejected individually.
type CollectIntervalInput struct {
	DeviceID      string `json:"deviceId"`
	Domain        string `json:"domain"`
	Category      string `json:"category"`
	StartedAt     string `json:"startedAt"`
	EndedAt       string `json:"endedAt"`
	SecondsActive int    `json:"secondsActive"`
	IdleSeconds   int    `json:"idleSeconds"`
}

// CollectIntervals stores a batch of agent-reported intervals in a single
// transaction. Rows with unparsable timestamps or negative counters are
// skipped and counted; the batch never fails because of one bad row.
// Returns the number of stored and skipped rows.
func CollectIntervals(dbManager cartridge.DBManager, logger *slog.Logger, inputs []CollectIntervalInput) (stored int, skipped int, err error) {
	rows := make([]ActivityInterval, 0, len(inputs))
	for _, in := range inputs {
		iv, convErr := in.toInterval()
		if convErr != nil {
			skipped++
			logger.Warn("Skipping malformed interval",
				slog.String("device_id", in.DeviceID),
				slog.String("domain", in.Domain),
				slog.Any("error", convErr))
			continue
		}
		rows = append(rows, *iv)
	}

	if len(rows) == 0 {
		return 0, skipped, nil
	}

	db := dbManager.GetConnection()
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to store intervals: %w", err)
	}

	return len(rows), skipped, nil
}

func (in *CollectIntervalInput) toInterval() (*ActivityInterval, error) {
	if in.DeviceID == "" {
		return nil, fmt.Errorf("missing device id")
	}
	if in.Domain == "" {
		return nil, fmt.Errorf("missing domain")
	}

	startedAt, err := time.Parse(time.RFC3339, in.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid startedAt %q: %w", in.StartedAt, err)
	}

	var endedAt *time.Time
	if in.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, in.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid endedAt %q: %w", in.EndedAt, err)
		}
		utc := t.UTC()
		endedAt = &utc
	}

	iv := &ActivityInterval{
		DeviceID:      in.DeviceID,
		Domain:        in.Domain,
		Category:      in.Category,
		StartedAt:     startedAt.UTC(),
		EndedAt:       endedAt,
		SecondsActive: in.SecondsActive,
		IdleSeconds:   in.IdleSeconds,
		CreatedAt:     time.Now().UTC(),
	}
	if !iv.Valid() {
		return nil, fmt.Errorf("interval fails validation")
	}
	// Unknown categories are stored as-is and aggregate as neutral.
	return iv, nil
}

// Devices returns the distinct device ids that reported intervals within
// the lookback window. Used by the rollup job to know what to aggregate.
func Devices(db *gorm.DB, since time.Time) ([]string, error) {
	var ids []string
	err := db.Model(&ActivityInterval{}).
		Where("started_at >= ?", since.UTC()).
		Distinct("device_id").
		Order("device_id ASC").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return ids, nil
}
