package rollups_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attently/internal/intervals"
	"attently/internal/rollups"
	"attently/internal/settings"
	"attently/internal/testsupport"
)

func TestGenerateLocalRollups(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	t.Run("buckets by start hour and folds categories", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		testsupport.CreateTestInterval(t, db, "laptop", "github.com", intervals.CategoryProductive,
			day.Add(9*time.Hour+10*time.Minute), 1800, 60)
		testsupport.CreateTestInterval(t, db, "laptop", "news.example", intervals.CategoryDraining,
			day.Add(9*time.Hour+45*time.Minute), 600, 0)
		testsupport.CreateTestInterval(t, db, "laptop", "mail.example", intervals.CategoryEmergency,
			day.Add(10*time.Hour), 300, 30)

		result, err := rollups.GenerateLocalRollups(db, logger, "laptop", day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, result, 2)

		byHour := make(map[time.Time]rollups.ActivityRollup)
		for _, r := range result {
			byHour[r.HourStart] = r
		}

		nine := byHour[day.Add(9*time.Hour)]
		assert.Equal(t, "laptop", nine.DeviceID)
		assert.InDelta(t, 1800, nine.ProductiveSeconds, 1e-9)
		assert.InDelta(t, 600, nine.FrivolitySeconds, 1e-9, "draining counts as frivolity")
		assert.InDelta(t, 60, nine.IdleSeconds, 1e-9)

		ten := byHour[day.Add(10*time.Hour)]
		assert.InDelta(t, 300, ten.NeutralSeconds, 1e-9, "emergency counts as neutral")
		assert.InDelta(t, 30, ten.IdleSeconds, 1e-9)
	})

	t.Run("interval spanning hours is bucketed whole by its start", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		testsupport.CreateTestInterval(t, db, "laptop", "github.com", intervals.CategoryProductive,
			day.Add(9*time.Hour+45*time.Minute), 3600, 0)

		result, err := rollups.GenerateLocalRollups(db, logger, "laptop", day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, day.Add(9*time.Hour), result[0].HourStart)
		assert.InDelta(t, 3600, result[0].ProductiveSeconds, 1e-9)
	})

	t.Run("suppressed domains aggregate as neutral", func(t *testing.T) {
		testsupport.CleanActivityData(db)
		require.NoError(t, settings.SaveExcludedKeywords(db, []string{"secret"}))
		defer func() {
			require.NoError(t, settings.SaveExcludedKeywords(db, nil))
		}()

		testsupport.CreateTestInterval(t, db, "laptop", "secret-project.example", intervals.CategoryProductive,
			day.Add(8*time.Hour), 900, 0)

		result, err := rollups.GenerateLocalRollups(db, logger, "laptop", day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.InDelta(t, 0, result[0].ProductiveSeconds, 1e-9)
		assert.InDelta(t, 900, result[0].NeutralSeconds, 1e-9)
	})

	t.Run("empty range yields no rollups", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		result, err := rollups.GenerateLocalRollups(db, logger, "laptop", day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, result)
	})
}

func TestUpsertRollupsOverwrites(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	hour := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	first := []rollups.ActivityRollup{{
		DeviceID: "laptop", HourStart: hour,
		ProductiveSeconds: 1000, NeutralSeconds: 200, FrivolitySeconds: 50, IdleSeconds: 10,
	}}
	require.NoError(t, rollups.UpsertRollups(logger, db, first))

	// A second upsert for the same hour replaces, never adds.
	second := []rollups.ActivityRollup{{
		DeviceID: "laptop", HourStart: hour,
		ProductiveSeconds: 700, NeutralSeconds: 100, FrivolitySeconds: 0, IdleSeconds: 5,
	}}
	require.NoError(t, rollups.UpsertRollups(logger, db, second))

	rows, err := rollups.ActivityInRange(db, "laptop", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 700, rows[0].ProductiveSeconds, 1e-9)
	assert.InDelta(t, 100, rows[0].NeutralSeconds, 1e-9)
	assert.InDelta(t, 0, rows[0].FrivolitySeconds, 1e-9)
	assert.InDelta(t, 5, rows[0].IdleSeconds, 1e-9)

	// A different device in the same hour gets its own row.
	other := []rollups.ActivityRollup{{
		DeviceID: "desktop", HourStart: hour, ProductiveSeconds: 300,
	}}
	require.NoError(t, rollups.UpsertRollups(logger, db, other))

	all, err := rollups.ActivityInRange(db, "", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListSince(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	hour := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, rollups.UpsertRollups(logger, db, []rollups.ActivityRollup{
		{DeviceID: "laptop", HourStart: hour, ProductiveSeconds: 100},
		{DeviceID: "laptop", HourStart: hour.Add(time.Hour), ProductiveSeconds: 200},
	}))

	rows, err := rollups.ListSince(db, time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = rollups.ListSince(db, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadingRollupOverwrite(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	hour := time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)

	require.NoError(t, rollups.UpsertReadingRollups(logger, db, []rollups.ReadingRollup{
		{HourStart: hour, ActiveSeconds: 1200, FocusedSeconds: 900},
	}))
	require.NoError(t, rollups.UpsertReadingRollups(logger, db, []rollups.ReadingRollup{
		{HourStart: hour, ActiveSeconds: 1500, FocusedSeconds: 1000},
	}))

	rows, err := rollups.ReadingInRange(db, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1500, rows[0].ActiveSeconds, 1e-9)
	assert.InDelta(t, 1000, rows[0].FocusedSeconds, 1e-9)
}

func TestWritingRollupAccumulates(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	hour := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, rollups.AccumulateWritingDeltas(logger, db, []rollups.WritingRollup{
		{HourStart: hour, Keystrokes: 500, WordsAdded: 120, WordsDeleted: 20, NetWords: 100},
	}))
	require.NoError(t, rollups.AccumulateWritingDeltas(logger, db, []rollups.WritingRollup{
		{HourStart: hour, Keystrokes: 300, WordsAdded: 60, WordsDeleted: 10, NetWords: 50},
	}))

	rows, err := rollups.WritingInRange(db, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 800, rows[0].Keystrokes)
	assert.Equal(t, 180, rows[0].WordsAdded)
	assert.Equal(t, 30, rows[0].WordsDeleted)
	assert.Equal(t, 150, rows[0].NetWords)
}
