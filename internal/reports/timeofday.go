package reports

import (
	"log/slog"
	"time"

	"attently/internal/intervals"
	"attently/internal/rollups"
	"attently/internal/settings"
	"attently/internal/timewindow"
)

// TimeOfDayStat is one shifted hour-of-day bucket. Bucket is the position
// on the day-start-relative scale (0 = the configured day-start hour);
// ClockHour is the wall-clock hour it corresponds to.
type TimeOfDayStat struct {
	Bucket            int     `json:"bucket"`
	ClockHour         int     `json:"clockHour"`
	ProductiveSeconds float64 `json:"productiveSeconds"`
	NeutralSeconds    float64 `json:"neutralSeconds"`
	FrivolitySeconds  float64 `json:"frivolitySeconds"`
	IdleSeconds       float64 `json:"idleSeconds"`
	ReadingSeconds    float64 `json:"readingSeconds"`
	Keystrokes        int     `json:"keystrokes"`
	DominantCategory  string  `json:"dominantCategory"`
	DominantDomain    string  `json:"dominantDomain"`
	AvgEngagement     float64 `json:"avgEngagement"`
}

// GetTimeOfDayAnalysis folds the trailing window into 24 day-start-shifted
// hour buckets. Reading and writing rollups join their bucket by raw
// wall-clock hour. Dominant category and domain resolve ties
// deterministically: category by the fixed category order, domain
// alphabetically.
func (b *Builder) GetTimeOfDayAnalysis(days int) []TimeOfDayStat {
	days = clampDays(days)
	now := b.now()
	from := now.AddDate(0, 0, -days)

	rows, keywords := b.loadWindow(from, now)
	dayStart := settings.GetDayStartHour(b.db)

	stats := make([]TimeOfDayStat, 24)
	domainSeconds := make([]map[string]float64, 24)
	for i := range stats {
		stats[i].Bucket = i
		stats[i].ClockHour = timewindow.UnshiftHour(i, dayStart)
		domainSeconds[i] = make(map[string]float64)
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

		category := effectiveCategory(iv, keywords)
		suppressed := settings.DomainSuppressed(iv.Domain, keywords)

		for _, share := range timewindow.DistributeAcrossHours(c) {
			rawHour := time.UnixMilli(share.HourStartMs).UTC().Hour()
			bucket := &stats[timewindow.ShiftHour(rawHour, dayStart)]

			switch category {
			case intervals.CategoryProductive:
				bucket.ProductiveSeconds += share.ActiveSeconds
			case intervals.CategoryFrivolity, intervals.CategoryDraining:
				bucket.FrivolitySeconds += share.ActiveSeconds
			default:
				bucket.NeutralSeconds += share.ActiveSeconds
			}
			bucket.IdleSeconds += share.IdleSeconds

			if !suppressed {
				domainSeconds[bucket.Bucket][iv.Domain] += share.ActiveSeconds
			}
		}
	}

	b.foldAuxStreamsByHour(stats, dayStart, from, now)

	for i := range stats {
		s := &stats[i]
		s.DominantCategory = dominantCategory(s)
		s.DominantDomain = displayName(topDomain(domainSeconds[i]))
		active := s.ProductiveSeconds + s.NeutralSeconds + s.FrivolitySeconds
		s.AvgEngagement = safeRatio(active, active+s.IdleSeconds, 0)
	}

	return stats
}

// foldAuxStreamsByHour merges the reading and writing hourly rollups into
// their shifted buckets. Reading time counts as productive time.
func (b *Builder) foldAuxStreamsByHour(stats []TimeOfDayStat, dayStart int, from, to time.Time) {
	reading, err := rollups.ReadingInRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load reading rollups for time-of-day analysis", slog.Any("error", err))
	}
	for _, r := range reading {
		bucket := &stats[timewindow.ShiftHour(r.HourStart.UTC().Hour(), dayStart)]
		bucket.ReadingSeconds += r.ActiveSeconds
		bucket.ProductiveSeconds += r.ActiveSeconds
	}

	writing, err := rollups.WritingInRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load writing rollups for time-of-day analysis", slog.Any("error", err))
	}
	for _, w := range writing {
		bucket := &stats[timewindow.ShiftHour(w.HourStart.UTC().Hour(), dayStart)]
		bucket.Keystrokes += w.Keystrokes
	}
}

// dominantCategory picks the category with the most seconds in a bucket.
// Ties resolve in the fixed order productive, neutral, frivolity; an empty
// bucket has no dominant category.
func dominantCategory(s *TimeOfDayStat) string {
	type pair struct {
		name    string
		seconds float64
	}
	ordered := []pair{
		{intervals.CategoryProductive, s.ProductiveSeconds},
		{intervals.CategoryNeutral, s.NeutralSeconds},
		{intervals.CategoryFrivolity, s.FrivolitySeconds},
	}

	best := pair{}
	for _, p := range ordered {
		if p.seconds > best.seconds {
			best = p
		}
	}
	if best.name == "" {
		return ""
	}
	return displayName(best.name)
}
