package reports

import (
	"log/slog"
	"math"
	"time"

	"attently/internal/intervals"
	"attently/internal/rollups"
	"attently/internal/sessions"
	"attently/internal/settings"
	"attently/internal/timewindow"
)

// AnalyticsOverview is the top-level summary for a trailing window.
type AnalyticsOverview struct {
	Days                int     `json:"days"`
	ProductiveSeconds   float64 `json:"productiveSeconds"`
	NeutralSeconds      float64 `json:"neutralSeconds"`
	FrivolitySeconds    float64 `json:"frivolitySeconds"`
	IdleSeconds         float64 `json:"idleSeconds"`
	ReadingSeconds      float64 `json:"readingSeconds"`
	Keystrokes          int     `json:"keystrokes"`
	NetWords            int     `json:"netWords"`
	DeepWorkSeconds     float64 `json:"deepWorkSeconds"`
	TopEngagementDomain string  `json:"topEngagementDomain"`
	PeakProductiveHour  int     `json:"peakProductiveHour"`
	RiskHour            int     `json:"riskHour"`
	ProductivityScore   int     `json:"productivityScore"`
	FocusTrend          string  `json:"focusTrend"`
}

// GetOverview aggregates the trailing window into one summary. Reading
// time counts as productive; writing activity contributes its counters.
// Peak and risk hours resolve ties to the lowest hour index.
func (b *Builder) GetOverview(days int) *AnalyticsOverview {
	days = clampDays(days)
	now := b.now()
	from := now.AddDate(0, 0, -days)

	rows, keywords := b.loadWindow(from, now)

	o := &AnalyticsOverview{Days: days, FocusTrend: TrendStable}

	fromMs := from.UnixMilli()
	nowMs := now.UnixMilli()

	var productiveByHour, frivolityByHour [24]float64
	domainSeconds := make(map[string]float64)

	// The earlier/later halves split the window's intervals by position in
	// the chronologically ordered result set.
	half := len(rows) / 2
	var olderProductive, recentProductive float64

	for i := range rows {
		iv := &rows[i]
		c := timewindow.Clip(iv.StartedAt.UnixMilli(), iv.EffectiveEnd().UnixMilli(),
			float64(iv.SecondsActive), float64(iv.IdleSeconds), fromMs, nowMs)
		if c == nil {
			continue
		}

		category := effectiveCategory(iv, keywords)
		suppressed := settings.DomainSuppressed(iv.Domain, keywords)

		switch category {
		case intervals.CategoryProductive:
			o.ProductiveSeconds += c.ActiveSeconds
			if i < half {
				olderProductive += c.ActiveSeconds
			} else {
				recentProductive += c.ActiveSeconds
			}
		case intervals.CategoryFrivolity, intervals.CategoryDraining:
			o.FrivolitySeconds += c.ActiveSeconds
		default:
			o.NeutralSeconds += c.ActiveSeconds
		}
		o.IdleSeconds += c.IdleSeconds

		if !suppressed {
			domainSeconds[iv.Domain] += c.ActiveSeconds
		}

		for _, share := range timewindow.DistributeAcrossHours(c) {
			hour := time.UnixMilli(share.HourStartMs).UTC().Hour()
			switch category {
			case intervals.CategoryProductive:
				productiveByHour[hour] += share.ActiveSeconds
			case intervals.CategoryFrivolity, intervals.CategoryDraining:
				frivolityByHour[hour] += share.ActiveSeconds
			}
		}
	}

	b.foldAuxStreams(o, &productiveByHour, from, now)
	o.DeepWorkSeconds = b.deepWorkSeconds(from, now)

	o.TopEngagementDomain = topDomain(domainSeconds)
	o.PeakProductiveHour = argmaxHour(productiveByHour)
	o.RiskHour = argmaxHour(frivolityByHour)

	categorized := o.ProductiveSeconds + o.NeutralSeconds + o.FrivolitySeconds
	if categorized > 0 {
		o.ProductivityScore = int(math.Round(o.ProductiveSeconds / categorized * 100))
	} else {
		o.ProductivityScore = undefinedScore
	}

	if recentProductive > olderProductive*trendImprovingFactor {
		o.FocusTrend = TrendImproving
	} else if recentProductive < olderProductive*trendDecliningFactor {
		o.FocusTrend = TrendDeclining
	}

	return o
}

// foldAuxStreams merges the reading and writing hourly rollups into the
// overview. Reading time is productive time; writing contributes counters
// only since its rollups carry no seconds.
func (b *Builder) foldAuxStreams(o *AnalyticsOverview, productiveByHour *[24]float64, from, to time.Time) {
	reading, err := rollups.ReadingInRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load reading rollups for overview", slog.Any("error", err))
	}
	for _, r := range reading {
		o.ReadingSeconds += r.ActiveSeconds
		o.ProductiveSeconds += r.ActiveSeconds
		productiveByHour[r.HourStart.UTC().Hour()] += r.ActiveSeconds
	}

	writing, err := rollups.WritingInRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load writing rollups for overview", slog.Any("error", err))
	}
	for _, w := range writing {
		o.Keystrokes += w.Keystrokes
		o.NetWords += w.NetWords
	}
}

// deepWorkSeconds sums focus-session time inside the window. A session
// counts up to the earliest of its planned end, its actual end, and the
// window end.
func (b *Builder) deepWorkSeconds(from, to time.Time) float64 {
	sess, err := sessions.InRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load focus sessions for overview", slog.Any("error", err))
		return 0
	}

	var total float64
	for i := range sess {
		s := &sess[i]
		overlapMs := timewindow.Overlap(
			s.StartedAt.UnixMilli(), s.EffectiveEnd().UnixMilli(),
			from.UnixMilli(), to.UnixMilli())
		total += float64(overlapMs) / 1000
	}
	return total
}

// topDomain returns the domain with the most accumulated seconds; ties go
// to the lexicographically smallest domain.
func topDomain(domainSeconds map[string]float64) string {
	var best string
	var bestSeconds float64
	for domain, seconds := range domainSeconds {
		if seconds > bestSeconds || (seconds == bestSeconds && bestSeconds > 0 && domain < best) {
			best = domain
			bestSeconds = seconds
		}
	}
	return best
}

// argmaxHour returns the hour with the highest value; ties go to the
// lowest hour index.
func argmaxHour(byHour [24]float64) int {
	best := 0
	for h := 1; h < 24; h++ {
		if byHour[h] > byHour[best] {
			best = h
		}
	}
	return best
}
