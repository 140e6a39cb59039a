package timewindow_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attently/internal/timewindow"
)

func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     int64
		expected                       int64
	}{
		{"disjoint before", 0, 100, 200, 300, 0},
		{"disjoint after", 200, 300, 0, 100, 0},
		{"touching edges", 0, 100, 100, 200, 0},
		{"partial overlap", 0, 150, 100, 200, 50},
		{"contained", 100, 200, 0, 300, 100},
		{"containing", 0, 300, 100, 200, 100},
		{"identical", 50, 150, 50, 150, 100},
		{"zero width interval", 100, 100, 0, 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, timewindow.Overlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
		})
	}
}

func TestOverlapBounds(t *testing.T) {
	// Overlap is never negative and never exceeds either span.
	cases := [][4]int64{
		{0, 3_600_000, 1_800_000, 5_400_000},
		{0, 10, 5, 5},
		{-100, 100, -50, 200},
		{0, 86_400_000, 3_600_000, 7_200_000},
	}
	for _, c := range cases {
		got := timewindow.Overlap(c[0], c[1], c[2], c[3])
		assert.GreaterOrEqual(t, got, int64(0))
		assert.LessOrEqual(t, got, c[1]-c[0])
		assert.LessOrEqual(t, got, c[3]-c[2])
	}
}

func TestClip(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("zero duration interval returns nil", func(t *testing.T) {
		c := timewindow.Clip(ms(base), ms(base), 100, 0, ms(base.Add(-time.Hour)), ms(base.Add(time.Hour)))
		assert.Nil(t, c)
	})

	t.Run("disjoint interval returns nil", func(t *testing.T) {
		c := timewindow.Clip(ms(base), ms(base.Add(time.Hour)), 3600, 0,
			ms(base.Add(2*time.Hour)), ms(base.Add(3*time.Hour)))
		assert.Nil(t, c)
	})

	t.Run("fully contained keeps raw seconds", func(t *testing.T) {
		c := timewindow.Clip(ms(base), ms(base.Add(45*time.Minute)), 2700, 0,
			ms(base.Add(-time.Hour)), ms(base.Add(2*time.Hour)))
		require.NotNil(t, c)
		assert.InDelta(t, 2700, c.ActiveSeconds, 1e-9)
		assert.InDelta(t, 0, c.IdleSeconds, 1e-9)
		assert.Equal(t, int64(45*60*1000), c.DurationMs())
	})

	t.Run("half overlap scales both active and idle", func(t *testing.T) {
		// Interval 10:00-11:00, window ends 10:30 -> half the seconds.
		start := base.Add(time.Hour)
		c := timewindow.Clip(ms(start), ms(start.Add(time.Hour)), 3000, 600,
			ms(base), ms(start.Add(30*time.Minute)))
		require.NotNil(t, c)
		assert.InDelta(t, 1500, c.ActiveSeconds, 1e-9)
		assert.InDelta(t, 300, c.IdleSeconds, 1e-9)
	})
}

func TestClipOverlapInvariant(t *testing.T) {
	// 0 <= overlap <= min(intervalDuration, windowDuration) for assorted windows.
	ivStart := int64(1_000_000)
	ivEnd := int64(9_000_000)
	windows := [][2]int64{
		{0, 500_000},
		{0, 2_000_000},
		{2_000_000, 8_000_000},
		{8_500_000, 20_000_000},
		{0, 20_000_000},
	}
	for _, w := range windows {
		c := timewindow.Clip(ivStart, ivEnd, 100, 10, w[0], w[1])
		if c == nil {
			continue
		}
		dur := c.DurationMs()
		assert.Greater(t, dur, int64(0))
		assert.LessOrEqual(t, dur, ivEnd-ivStart)
		assert.LessOrEqual(t, dur, w[1]-w[0])
	}
}

func TestDistributeAcrossHours(t *testing.T) {
	t.Run("single hour gets everything", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
		c := &timewindow.Contribution{
			OverlapStartMs: ms(start),
			OverlapEndMs:   ms(start.Add(45 * time.Minute)),
			ActiveSeconds:  2700,
		}
		shares := timewindow.DistributeAcrossHours(c)
		require.Len(t, shares, 1)
		assert.Equal(t, ms(start), shares[0].HourStartMs)
		assert.InDelta(t, 1.0, shares[0].Fraction, 1e-9)
		assert.InDelta(t, 2700, shares[0].ActiveSeconds, 1e-9)
	})

	t.Run("midnight crossing splits evenly", func(t *testing.T) {
		// 23:30-00:30, 3600s active: 1800s in each hour bucket.
		start := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
		c := &timewindow.Contribution{
			OverlapStartMs: ms(start),
			OverlapEndMs:   ms(start.Add(time.Hour)),
			ActiveSeconds:  3600,
		}
		shares := timewindow.DistributeAcrossHours(c)
		require.Len(t, shares, 2)
		assert.Equal(t, ms(time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)), shares[0].HourStartMs)
		assert.Equal(t, ms(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)), shares[1].HourStartMs)
		assert.InDelta(t, 1800, shares[0].ActiveSeconds, 1e-9)
		assert.InDelta(t, 1800, shares[1].ActiveSeconds, 1e-9)
	})

	t.Run("fractions sum to one and seconds are conserved", func(t *testing.T) {
		starts := []time.Time{
			time.Date(2025, 3, 10, 7, 13, 21, 0, time.UTC),
			time.Date(2025, 3, 10, 22, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		}
		durations := []time.Duration{
			17 * time.Minute,
			5 * time.Hour,
			26*time.Hour + 13*time.Minute,
		}
		for _, s := range starts {
			for _, d := range durations {
				c := &timewindow.Contribution{
					OverlapStartMs: ms(s),
					OverlapEndMs:   ms(s.Add(d)),
					ActiveSeconds:  1234.5,
					IdleSeconds:    67.8,
				}
				shares := timewindow.DistributeAcrossHours(c)
				require.NotEmpty(t, shares)

				var fractions, active, idle float64
				for _, share := range shares {
					fractions += share.Fraction
					active += share.ActiveSeconds
					idle += share.IdleSeconds
				}
				assert.InDelta(t, 1.0, fractions, 1e-9)
				assert.InDelta(t, c.ActiveSeconds, active, 1e-9)
				assert.InDelta(t, c.IdleSeconds, idle, 1e-9)
			}
		}
	})

	t.Run("exact hour boundary end does not leak into next bucket", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
		c := &timewindow.Contribution{
			OverlapStartMs: ms(start),
			OverlapEndMs:   ms(start.Add(time.Hour)),
			ActiveSeconds:  3600,
		}
		shares := timewindow.DistributeAcrossHours(c)
		require.Len(t, shares, 1)
	})

	t.Run("nil contribution", func(t *testing.T) {
		assert.Nil(t, timewindow.DistributeAcrossHours(nil))
	})
}

func TestShiftUnshiftRoundTrip(t *testing.T) {
	for dayStart := 0; dayStart < 24; dayStart++ {
		for hour := 0; hour < 24; hour++ {
			shifted := timewindow.ShiftHour(hour, dayStart)
			require.GreaterOrEqual(t, shifted, 0)
			require.Less(t, shifted, 24)
			assert.Equal(t, hour, timewindow.UnshiftHour(shifted, dayStart),
				"hour=%d dayStart=%d", hour, dayStart)
		}
	}
}

func TestShiftHourDefaultDayStart(t *testing.T) {
	// With the 4am day start, 23:00 and 00:00 stay adjacent.
	assert.Equal(t, 19, timewindow.ShiftHour(23, timewindow.DefaultDayStartHour))
	assert.Equal(t, 20, timewindow.ShiftHour(0, timewindow.DefaultDayStartHour))
	assert.Equal(t, 0, timewindow.ShiftHour(4, timewindow.DefaultDayStartHour))
	assert.Equal(t, 23, timewindow.ShiftHour(3, timewindow.DefaultDayStartHour))
}

func TestFloorToHour(t *testing.T) {
	in := time.Date(2025, 3, 10, 9, 47, 12, 345, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), timewindow.FloorToHour(in))

	assert.Equal(t, int64(0), timewindow.FloorToHourMs(59*60*1000))
	assert.Equal(t, timewindow.HourMs, timewindow.FloorToHourMs(timewindow.HourMs))
	assert.Equal(t, -timewindow.HourMs, timewindow.FloorToHourMs(-1))
}

func TestFractionNeverNaN(t *testing.T) {
	c := timewindow.Clip(0, 1, 0, 0, 0, 1)
	require.NotNil(t, c)
	for _, share := range timewindow.DistributeAcrossHours(c) {
		assert.False(t, math.IsNaN(share.Fraction))
	}
}
