// Package timewindow contains the pure time arithmetic used by the
// analytics engine: clipping activity intervals against query windows,
// distributing a clipped interval's seconds across the hour buckets it
// spans, and the day-start hour shift used for time-of-day bucketing.
package timewindow

import "time"

// HourMs is the width of an hour bucket in milliseconds.
const HourMs int64 = 3_600_000

// DefaultDayStartHour is the hour-of-day at which a "day" begins when no
// setting is stored. A day runs 4am to 4am so late-night sessions stay
// attached to the evening they belong to.
const DefaultDayStartHour = 4

// Contribution is the portion of one interval that falls inside a query
// window. ActiveSeconds and IdleSeconds are the interval's raw values
// scaled by the overlap ratio. Contributions are ephemeral and never
// persisted.
type Contribution struct {
	OverlapStartMs int64
	OverlapEndMs   int64
	ActiveSeconds  float64
	IdleSeconds    float64
}

// DurationMs returns the overlap duration in milliseconds.
func (c *Contribution) DurationMs() int64 {
	return c.OverlapEndMs - c.OverlapStartMs
}

// HourShare is the slice of a Contribution assigned to a single hour bucket.
type HourShare struct {
	HourStartMs   int64
	Fraction      float64
	ActiveSeconds float64
	IdleSeconds   float64
}

// Overlap returns the length of the intersection of [aStart,aEnd) and
// [bStart,bEnd) in milliseconds, never negative.
func Overlap(aStart, aEnd, bStart, bEnd int64) int64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// Clip intersects an interval [startMs,endMs) with a window
// [rangeStartMs,rangeEndMs) and scales its active/idle seconds by the
// overlap ratio. Returns nil when the interval has zero duration or does
// not intersect the window.
func Clip(startMs, endMs int64, activeSeconds, idleSeconds float64, rangeStartMs, rangeEndMs int64) *Contribution {
	total := endMs - startMs
	if total <= 0 {
		return nil
	}

	overlap := Overlap(startMs, endMs, rangeStartMs, rangeEndMs)
	if overlap <= 0 {
		return nil
	}

	overlapStart := startMs
	if rangeStartMs > overlapStart {
		overlapStart = rangeStartMs
	}

	ratio := float64(overlap) / float64(total)
	return &Contribution{
		OverlapStartMs: overlapStart,
		OverlapEndMs:   overlapStart + overlap,
		ActiveSeconds:  activeSeconds * ratio,
		IdleSeconds:    idleSeconds * ratio,
	}
}

// DistributeAcrossHours splits a Contribution across the hour buckets it
// touches. Each bucket receives fraction = bucketOverlap / clipDuration of
// the clipped seconds, so the fractions across all returned shares sum to 1
// and no seconds are created or lost.
func DistributeAcrossHours(c *Contribution) []HourShare {
	if c == nil || c.DurationMs() <= 0 {
		return nil
	}

	total := float64(c.DurationMs())
	firstHour := FloorToHourMs(c.OverlapStartMs)
	lastHour := FloorToHourMs(c.OverlapEndMs - 1)

	shares := make([]HourShare, 0, (lastHour-firstHour)/HourMs+1)
	for bucket := firstHour; bucket <= lastHour; bucket += HourMs {
		bucketOverlap := Overlap(c.OverlapStartMs, c.OverlapEndMs, bucket, bucket+HourMs)
		if bucketOverlap <= 0 {
			continue
		}
		fraction := float64(bucketOverlap) / total
		shares = append(shares, HourShare{
			HourStartMs:   bucket,
			Fraction:      fraction,
			ActiveSeconds: c.ActiveSeconds * fraction,
			IdleSeconds:   c.IdleSeconds * fraction,
		})
	}
	return shares
}

// ShiftHour maps a raw hour-of-day onto the day-start-relative scale, so
// that dayStart maps to 0 and dayStart-1 maps to 23.
func ShiftHour(hour, dayStart int) int {
	return ((hour-dayStart)%24 + 24) % 24
}

// UnshiftHour is the exact inverse of ShiftHour for all inputs in [0,23].
func UnshiftHour(shifted, dayStart int) int {
	return ((shifted+dayStart)%24 + 24) % 24
}

// FloorToHour truncates a timestamp to the start of its UTC hour.
func FloorToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// FloorToHourMs truncates an epoch-millisecond timestamp to its hour start.
func FloorToHourMs(ms int64) int64 {
	if ms >= 0 {
		return ms - ms%HourMs
	}
	// Round toward negative infinity for pre-epoch timestamps.
	rem := ms % HourMs
	if rem == 0 {
		return ms
	}
	return ms - rem - HourMs
}
