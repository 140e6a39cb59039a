package intervals_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attently/internal/intervals"
	"attently/internal/testsupport"
)

func TestCollectIntervals(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	now := time.Now().UTC()

	t.Run("stores valid rows and skips bad ones", func(t *testing.T) {
		inputs := []intervals.CollectIntervalInput{
			{
				DeviceID: "laptop", Domain: "github.com", Category: intervals.CategoryProductive,
				StartedAt: now.Format(time.RFC3339), SecondsActive: 300,
			},
			{
				DeviceID: "laptop", Domain: "twitter.com", Category: intervals.CategoryFrivolity,
				StartedAt: now.Format(time.RFC3339),
				EndedAt:   now.Add(5 * time.Minute).Format(time.RFC3339),
				SecondsActive: 280, IdleSeconds: 20,
			},
			// Unparsable timestamp
			{DeviceID: "laptop", Domain: "a.example", StartedAt: "yesterday-ish", SecondsActive: 10},
			// End before start
			{
				DeviceID: "laptop", Domain: "b.example",
				StartedAt: now.Format(time.RFC3339),
				EndedAt:   now.Add(-time.Minute).Format(time.RFC3339),
			},
			// Negative counter
			{DeviceID: "laptop", Domain: "c.example", StartedAt: now.Format(time.RFC3339), SecondsActive: -1},
			// Missing domain
			{DeviceID: "laptop", StartedAt: now.Format(time.RFC3339), SecondsActive: 10},
		}

		stored, skipped, err := intervals.CollectIntervals(dbManager, logger, inputs)
		require.NoError(t, err)
		assert.Equal(t, 2, stored)
		assert.Equal(t, 4, skipped)
	})

	t.Run("all-bad batch stores nothing without failing", func(t *testing.T) {
		inputs := []intervals.CollectIntervalInput{
			{DeviceID: "laptop", Domain: "a.example", StartedAt: "nope"},
		}
		stored, skipped, err := intervals.CollectIntervals(dbManager, logger, inputs)
		require.NoError(t, err)
		assert.Equal(t, 0, stored)
		assert.Equal(t, 1, skipped)
	})
}

func TestEffectiveEnd(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	end := start.Add(10 * time.Minute)
	closed := intervals.ActivityInterval{StartedAt: start, EndedAt: &end, SecondsActive: 300}
	assert.Equal(t, end, closed.EffectiveEnd())

	open := intervals.ActivityInterval{StartedAt: start, SecondsActive: 240, IdleSeconds: 60}
	assert.Equal(t, start.Add(5*time.Minute), open.EffectiveEnd())
}

func TestInRange(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	t.Run("includes overlapping and excludes disjoint", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		inside := testsupport.CreateTestInterval(t, db, "laptop", "github.com", intervals.CategoryProductive,
			from.Add(9*time.Hour), 600, 0)
		// Starts before the range, reaches into it.
		spanning := testsupport.CreateTestInterval(t, db, "laptop", "mail.example", intervals.CategoryNeutral,
			from.Add(-30*time.Minute), 3600, 0)
		// Entirely before.
		testsupport.CreateTestInterval(t, db, "laptop", "old.example", intervals.CategoryNeutral,
			from.Add(-5*time.Hour), 600, 0)
		// Entirely after.
		testsupport.CreateTestInterval(t, db, "laptop", "future.example", intervals.CategoryNeutral,
			to.Add(time.Hour), 600, 0)

		rows, err := intervals.InRange(db, "laptop", from, to)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, spanning.ID, rows[0].ID, "ordered by start ascending")
		assert.Equal(t, inside.ID, rows[1].ID)
	})

	t.Run("open interval included via its effective end", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		// No stored end; 2h of accumulated seconds carry it into the range.
		open := intervals.ActivityInterval{
			DeviceID: "laptop", Domain: "github.com", Category: intervals.CategoryProductive,
			StartedAt: from.Add(-time.Hour), SecondsActive: 7200,
		}
		require.NoError(t, db.Create(&open).Error)

		rows, err := intervals.InRange(db, "laptop", from, to)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, open.ID, rows[0].ID)
	})

	t.Run("domain filter scans only the requested domain", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		match := testsupport.CreateTestInterval(t, db, "laptop", "docs.example", intervals.CategoryProductive,
			from.Add(time.Hour), 600, 0)
		testsupport.CreateTestInterval(t, db, "laptop", "other.example", intervals.CategoryNeutral,
			from.Add(time.Hour), 600, 0)
		testsupport.CreateTestInterval(t, db, "desktop", "docs.example", intervals.CategoryProductive,
			to.Add(time.Hour), 600, 0)

		rows, err := intervals.DomainInRange(db, "docs.example", from, to)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, match.ID, rows[0].ID)
	})

	t.Run("device filter applies when set", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		testsupport.CreateTestInterval(t, db, "laptop", "github.com", intervals.CategoryProductive,
			from.Add(time.Hour), 600, 0)
		testsupport.CreateTestInterval(t, db, "desktop", "github.com", intervals.CategoryProductive,
			from.Add(time.Hour), 600, 0)

		rows, err := intervals.InRange(db, "laptop", from, to)
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		all, err := intervals.InRange(db, "", from, to)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestDevices(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, device := range []string{"laptop", "desktop", "laptop"} {
		testsupport.CreateTestInterval(t, db, device, fmt.Sprintf("site%d.example", i),
			intervals.CategoryNeutral, base.Add(time.Duration(i)*time.Minute), 60, 0)
	}

	devices, err := intervals.Devices(db, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"desktop", "laptop"}, devices)

	none, err := intervals.Devices(db, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
