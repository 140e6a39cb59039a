// Package reports builds the on-demand aggregate reports: overview,
// time-of-day analysis, and trends. All three share one shape: pull the
// raw intervals overlapping the window, clip them, apply privacy
// suppression, and fold into buckets. Reports are computed fresh per call
// and never persisted.
package reports

import (
	"log/slog"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"attently/internal/intervals"
	"attently/internal/settings"
)

// Window bounds. Reports clamp their parameters instead of rejecting them;
// a report is always best effort.
const (
	minDays = 1
	maxDays = 90
)

// Scores that cannot be derived default to the midpoint instead of NaN.
const undefinedScore = 50

// Trend direction relative to the earlier half of the window. Recent
// productive time must move by more than 10% to count as a change.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"

	trendImprovingFactor = 1.1
	trendDecliningFactor = 0.9
)

var titleCaser = cases.Title(language.English)

// Builder produces reports from the store. The clock is injectable so
// window anchoring can be tested deterministically.
type Builder struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder returns a Builder using the wall clock.
func NewBuilder(db *gorm.DB, logger *slog.Logger) *Builder {
	return &Builder{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the builder's clock. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func clampDays(days int) int {
	if days < minDays {
		return minDays
	}
	if days > maxDays {
		return maxDays
	}
	return days
}

// loadWindow pulls the intervals and suppression list for a window. An
// interval load failure degrades to an empty report rather than an error.
func (b *Builder) loadWindow(from, to time.Time) ([]intervals.ActivityInterval, []string) {
	rows, err := intervals.InRange(b.db, "", from, to)
	if err != nil {
		b.logger.Warn("Failed to load intervals for report", slog.Any("error", err))
		rows = nil
	}
	return rows, settings.GetExcludedKeywords()
}

// effectiveCategory folds an interval's category through suppression and
// the unknown-category fallback.
func effectiveCategory(iv *intervals.ActivityInterval, keywords []string) string {
	if settings.DomainSuppressed(iv.Domain, keywords) {
		return intervals.CategoryNeutral
	}
	if !intervals.KnownCategory(iv.Category) {
		return intervals.CategoryNeutral
	}
	return iv.Category
}

// displayName renders a category or domain label for the UI.
func displayName(s string) string {
	return titleCaser.String(s)
}

// safeRatio returns a*100/b, or fallback when b is zero.
func safeRatio(a, b, fallback float64) float64 {
	if b <= 0 {
		return fallback
	}
	return a / b * 100
}
