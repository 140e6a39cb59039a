// Package engagement scores how actively a user interacts with a domain,
// combining clipped activity intervals with the raw behavior-event stream
// (scrolls, clicks, keystrokes) reported by the browser extension.
package engagement

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attently/internal/intervals"
	"attently/internal/timewindow"
)

// Behavior event types reported by the extension.
const (
	EventTypeScroll    = "scroll"
	EventTypeClick     = "click"
	EventTypeKeystroke = "keystroke"
)

// Fixation scoring weights and thresholds. The score blends click and
// keystroke rates, damped by scroll velocity: fast scrolling means
// skimming, not fixating.
const (
	clickWeight           = 5.0
	keystrokeWeight       = 2.0
	scrollVelocityDamping = 1000.0
	maxFixationScore      = 100

	levelIntenseThreshold  = 80
	levelHighThreshold     = 60
	levelModerateThreshold = 40
	levelPassiveThreshold  = 20
)

// Engagement levels derived from the fixation score.
const (
	LevelIntense  = "intense"
	LevelHigh     = "high"
	LevelModerate = "moderate"
	LevelPassive  = "passive"
	LevelLow      = "low"
)

// BehaviorEvent is one raw interaction sample. Scroll events carry depth in
// ValueInt (percent) and velocity in ValueFloat (px/s); click and keystroke
// events carry only their occurrence.
type BehaviorEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Domain     string    `gorm:"index:idx_behavior_domain_ts;not null"`
	EventType  string    `gorm:"not null"`
	ValueInt   int       `gorm:"not null;default:0"`
	ValueFloat float64   `gorm:"not null;default:0"`
	Timestamp  time.Time `gorm:"index:idx_behavior_domain_ts;not null"`
	CreatedAt  time.Time
}

// Metrics is the engagement summary for one domain over a window.
type Metrics struct {
	Domain                  string  `json:"domain"`
	SessionCount            int     `json:"sessionCount"`
	TotalSeconds            float64 `json:"totalSeconds"`
	AvgScrollDepth          float64 `json:"avgScrollDepth"`
	AvgScrollVelocity       float64 `json:"avgScrollVelocity"`
	AvgClicksPerMinute      float64 `json:"avgClicksPerMinute"`
	AvgKeystrokesPerMinute  float64 `json:"avgKeystrokesPerMinute"`
	FixationScore           int     `json:"fixationScore"`
	EngagementLevel         string  `json:"engagementLevel"`
}

// BehaviorEventInput is one event in agent wire form.
type BehaviorEventInput struct {
	Domain     string  `json:"domain"`
	EventType  string  `json:"eventType"`
	ValueInt   int     `json:"valueInt"`
	ValueFloat float64 `json:"valueFloat"`
	Timestamp  string  `json:"timestamp"`
}

// IngestBehaviorEvents stores a batch of behavior events. Rows with a bad
// timestamp, unknown type, or missing domain are skipped and counted.
func IngestBehaviorEvents(dbManager cartridge.DBManager, logger *slog.Logger, inputs []BehaviorEventInput) (stored int, skipped int, err error) {
	rows := make([]BehaviorEvent, 0, len(inputs))
	for _, in := range inputs {
		ts, parseErr := time.Parse(time.RFC3339, in.Timestamp)
		if parseErr != nil || in.Domain == "" || !knownEventType(in.EventType) {
			skipped++
			logger.Warn("Skipping malformed behavior event",
				slog.String("domain", in.Domain),
				slog.String("event_type", in.EventType),
				slog.Any("error", parseErr))
			continue
		}
		rows = append(rows, BehaviorEvent{
			Domain:     in.Domain,
			EventType:  in.EventType,
			ValueInt:   in.ValueInt,
			ValueFloat: in.ValueFloat,
			Timestamp:  ts.UTC(),
			CreatedAt:  time.Now().UTC(),
		})
	}

	if len(rows) == 0 {
		return 0, skipped, nil
	}

	db := dbManager.GetConnection()
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to store behavior events: %w", err)
	}

	return len(rows), skipped, nil
}

func knownEventType(t string) bool {
	switch t {
	case EventTypeScroll, EventTypeClick, EventTypeKeystroke:
		return true
	}
	return false
}

// GetMetrics computes the engagement summary for a domain over the trailing
// window. days is clamped to [1, 90]. Any data-access failure degrades the
// affected metric to zero rather than failing the call; the fixation score
// of a domain with no behavior events is 0 and its level is low.
func GetMetrics(db *gorm.DB, logger *slog.Logger, domain string, days int) *Metrics {
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -days)

	m := &Metrics{Domain: domain}

	rows, err := intervals.DomainInRange(db, domain, from, now)
	if err != nil {
		logger.Warn("Failed to load intervals for engagement metrics",
			slog.String("domain", domain), slog.Any("error", err))
		rows = nil
	}

	fromMs := from.UnixMilli()
	nowMs := now.UnixMilli()
	for i := range rows {
		iv := &rows[i]
		c := timewindow.Clip(iv.StartedAt.UnixMilli(), iv.EffectiveEnd().UnixMilli(),
			float64(iv.SecondsActive), float64(iv.IdleSeconds), fromMs, nowMs)
		if c == nil {
			continue
		}
		m.SessionCount++
		m.TotalSeconds += c.ActiveSeconds
	}

	var events []BehaviorEvent
	err = db.Where("domain = ? AND timestamp >= ? AND timestamp < ?", domain, from, now).
		Find(&events).Error
	if err != nil {
		logger.Warn("Failed to load behavior events for engagement metrics",
			slog.String("domain", domain), slog.Any("error", err))
		events = nil
	}

	var scrollCount, clickCount, keystrokeCount int
	var depthSum, velocitySum float64
	for _, ev := range events {
		switch ev.EventType {
		case EventTypeScroll:
			scrollCount++
			depthSum += float64(ev.ValueInt)
			velocitySum += ev.ValueFloat
		case EventTypeClick:
			clickCount++
		case EventTypeKeystroke:
			keystrokeCount++
		}
	}

	if scrollCount > 0 {
		m.AvgScrollDepth = depthSum / float64(scrollCount)
		m.AvgScrollVelocity = velocitySum / float64(scrollCount)
	}

	minutes := math.Max(1, m.TotalSeconds/60)
	m.AvgClicksPerMinute = float64(clickCount) / minutes
	m.AvgKeystrokesPerMinute = float64(keystrokeCount) / minutes

	m.FixationScore = FixationScore(m.AvgClicksPerMinute, m.AvgKeystrokesPerMinute, m.AvgScrollVelocity)
	m.EngagementLevel = LevelForScore(m.FixationScore)

	return m
}

// FixationScore combines interaction rates into a 0..100 attention score.
// High scroll velocity damps the score toward zero: flicking through a page
// is not fixation no matter how often the user clicks.
func FixationScore(clicksPerMin, keystrokesPerMin, scrollVelocity float64) int {
	raw := (clicksPerMin*clickWeight + keystrokesPerMin*keystrokeWeight) *
		(1 - scrollVelocity/scrollVelocityDamping)
	score := int(math.Round(raw))
	if score < 0 {
		return 0
	}
	if score > maxFixationScore {
		return maxFixationScore
	}
	return score
}

// LevelForScore maps a fixation score onto the engagement level scale.
func LevelForScore(score int) string {
	switch {
	case score >= levelIntenseThreshold:
		return LevelIntense
	case score >= levelHighThreshold:
		return LevelHigh
	case score >= levelModerateThreshold:
		return LevelModerate
	case score >= levelPassiveThreshold:
		return LevelPassive
	default:
		return LevelLow
	}
}
