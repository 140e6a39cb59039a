// Package sessions stores deliberate focus sessions (pomodoro-style deep
// work blocks) started by the user. Reports overlay these onto the activity
// timeline to separate planned deep work from ambient screen time.
package sessions

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// FocusSession is one deliberate focus block. EndedAt is nil while the
// session is still running.
type FocusSession struct {
	ID                     uint       `gorm:"primaryKey;autoIncrement"`
	StartedAt              time.Time  `gorm:"index;not null"`
	EndedAt                *time.Time `gorm:"index"`
	PlannedDurationSeconds int        `gorm:"not null;default:0"`
	CreatedAt              time.Time
}

// EffectiveEnd returns the session's counted end: the earliest of the
// actual end and the planned end. Overruns past the planned duration do
// not count as deep work; an open session counts up to its planned end.
func (s *FocusSession) EffectiveEnd() time.Time {
	plannedEnd := s.StartedAt.Add(time.Duration(s.PlannedDurationSeconds) * time.Second)
	if s.EndedAt != nil && s.EndedAt.Before(plannedEnd) {
		return *s.EndedAt
	}
	return plannedEnd
}

// InRange returns focus sessions overlapping [from, to), ordered by start.
func InRange(db *gorm.DB, from, to time.Time) ([]FocusSession, error) {
	var rows []FocusSession
	err := db.Where(
		"started_at < ? AND (ended_at > ? OR ended_at IS NULL)",
		to.UTC(), from.UTC(),
	).Order("started_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query focus sessions: %w", err)
	}
	return rows, nil
}

// CollectSessionInput is one session as reported by the agent.
type CollectSessionInput struct {
	StartedAt              string `json:"startedAt"`
	EndedAt                string `json:"endedAt"`
	PlannedDurationSeconds int    `json:"plannedDurationSeconds"`
}

// CollectSessions stores a batch of agent-reported focus sessions. Bad rows
// are skipped and counted, never fatal for the batch.
func CollectSessions(dbManager cartridge.DBManager, logger *slog.Logger, inputs []CollectSessionInput) (stored int, skipped int, err error) {
	rows := make([]FocusSession, 0, len(inputs))
	for _, in := range inputs {
		s, convErr := in.toSession()
		if convErr != nil {
			skipped++
			logger.Warn("Skipping malformed focus session",
				slog.String("started_at", in.StartedAt),
				slog.Any("error", convErr))
			continue
		}
		rows = append(rows, *s)
	}

	if len(rows) == 0 {
		return 0, skipped, nil
	}

	db := dbManager.GetConnection()
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to store focus sessions: %w", err)
	}

	return len(rows), skipped, nil
}

func (in *CollectSessionInput) toSession() (*FocusSession, error) {
	startedAt, err := time.Parse(time.RFC3339, in.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid startedAt %q: %w", in.StartedAt, err)
	}
	if in.PlannedDurationSeconds < 0 {
		return nil, fmt.Errorf("negative planned duration %d", in.PlannedDurationSeconds)
	}

	s := &FocusSession{
		StartedAt:              startedAt.UTC(),
		PlannedDurationSeconds: in.PlannedDurationSeconds,
		CreatedAt:              time.Now().UTC(),
	}
	if in.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, in.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid endedAt %q: %w", in.EndedAt, err)
		}
		if t.Before(startedAt) {
			return nil, fmt.Errorf("endedAt precedes startedAt")
		}
		utc := t.UTC()
		s.EndedAt = &utc
	}
	return s, nil
}
