package reports

import (
	"log/slog"
	"time"

	"attently/internal/intervals"
	"attently/internal/sessions"
	"attently/internal/timewindow"
)

// Trend granularities.
const (
	GranularityHourly = "hourly"
	GranularityDaily  = "daily"
	GranularityWeekly = "weekly"
)

// TrendPoint is one fixed-width trend bucket ending at or before "now".
type TrendPoint struct {
	BucketStart       time.Time `json:"bucketStart"`
	ProductiveSeconds float64   `json:"productiveSeconds"`
	NeutralSeconds    float64   `json:"neutralSeconds"`
	FrivolitySeconds  float64   `json:"frivolitySeconds"`
	IdleSeconds       float64   `json:"idleSeconds"`
	DeepWorkSeconds   float64   `json:"deepWorkSeconds"`
	Engagement        float64   `json:"engagement"`
	QualityScore      float64   `json:"qualityScore"`
}

// GetTrends builds fixed-width buckets anchored to "now": 24 hourly, 30
// daily, or 12 weekly. Unknown granularities fall back to daily. Deep-work
// seconds from focus sessions are overlaid onto the same buckets.
func (b *Builder) GetTrends(granularity string) []TrendPoint {
	var count int
	var width time.Duration
	switch granularity {
	case GranularityHourly:
		count, width = 24, time.Hour
	case GranularityWeekly:
		count, width = 12, 7*24*time.Hour
	default:
		count, width = 30, 24*time.Hour
	}

	now := b.now()
	rangeStart := now.Add(-time.Duration(count) * width)

	points := make([]TrendPoint, count)
	for i := range points {
		points[i].BucketStart = rangeStart.Add(time.Duration(i) * width)
	}

	rows, keywords := b.loadWindow(rangeStart, now)

	startMs := rangeStart.UnixMilli()
	endMs := now.UnixMilli()
	widthMs := width.Milliseconds()

	for i := range rows {
		iv := &rows[i]
		c := timewindow.Clip(iv.StartedAt.UnixMilli(), iv.EffectiveEnd().UnixMilli(),
			float64(iv.SecondsActive), float64(iv.IdleSeconds), startMs, endMs)
		if c == nil {
			continue
		}

		category := effectiveCategory(iv, keywords)
		total := float64(c.DurationMs())

		first := int((c.OverlapStartMs - startMs) / widthMs)
		last := int((c.OverlapEndMs - 1 - startMs) / widthMs)
		for idx := first; idx <= last && idx < count; idx++ {
			if idx < 0 {
				continue
			}
			bucketStart := startMs + int64(idx)*widthMs
			overlapMs := timewindow.Overlap(c.OverlapStartMs, c.OverlapEndMs, bucketStart, bucketStart+widthMs)
			if overlapMs <= 0 {
				continue
			}
			fraction := float64(overlapMs) / total

			p := &points[idx]
			switch category {
			case intervals.CategoryProductive:
				p.ProductiveSeconds += c.ActiveSeconds * fraction
			case intervals.CategoryFrivolity, intervals.CategoryDraining:
				p.FrivolitySeconds += c.ActiveSeconds * fraction
			default:
				p.NeutralSeconds += c.ActiveSeconds * fraction
			}
			p.IdleSeconds += c.IdleSeconds * fraction
		}
	}

	b.overlayDeepWork(points, rangeStart, now, widthMs)

	for i := range points {
		p := &points[i]
		active := p.ProductiveSeconds + p.NeutralSeconds + p.FrivolitySeconds
		p.Engagement = safeRatio(active, active+p.IdleSeconds, 0)
		p.QualityScore = safeRatio(p.ProductiveSeconds, active, undefinedScore)
	}

	return points
}

// overlayDeepWork distributes focus-session time across the trend buckets.
func (b *Builder) overlayDeepWork(points []TrendPoint, from, to time.Time, widthMs int64) {
	sess, err := sessions.InRange(b.db, from, to)
	if err != nil {
		b.logger.Warn("Failed to load focus sessions for trends", slog.Any("error", err))
		return
	}

	startMs := from.UnixMilli()
	endMs := to.UnixMilli()

	for i := range sess {
		s := &sess[i]
		sStart := s.StartedAt.UnixMilli()
		sEnd := s.EffectiveEnd().UnixMilli()
		if sEnd > endMs {
			sEnd = endMs
		}
		if sStart < startMs {
			sStart = startMs
		}
		if sEnd <= sStart {
			continue
		}

		first := int((sStart - startMs) / widthMs)
		last := int((sEnd - 1 - startMs) / widthMs)
		for idx := first; idx <= last && idx < len(points); idx++ {
			if idx < 0 {
				continue
			}
			bucketStart := startMs + int64(idx)*widthMs
			overlapMs := timewindow.Overlap(sStart, sEnd, bucketStart, bucketStart+widthMs)
			points[idx].DeepWorkSeconds += float64(overlapMs) / 1000
		}
	}
}
