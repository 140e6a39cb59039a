package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attently/internal/sessions"
	"attently/internal/testsupport"
)

func TestEffectiveEnd(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("overrun caps at planned end", func(t *testing.T) {
		end := start.Add(40 * time.Minute)
		s := sessions.FocusSession{StartedAt: start, EndedAt: &end, PlannedDurationSeconds: 1500}
		assert.Equal(t, start.Add(25*time.Minute), s.EffectiveEnd())
	})

	t.Run("early stop counts the actual end", func(t *testing.T) {
		end := start.Add(10 * time.Minute)
		s := sessions.FocusSession{StartedAt: start, EndedAt: &end, PlannedDurationSeconds: 1500}
		assert.Equal(t, end, s.EffectiveEnd())
	})

	t.Run("open session counts up to its planned end", func(t *testing.T) {
		s := sessions.FocusSession{StartedAt: start, PlannedDurationSeconds: 1500}
		assert.Equal(t, start.Add(25*time.Minute), s.EffectiveEnd())
	})
}

func TestCollectSessions(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	now := time.Now().UTC()

	inputs := []sessions.CollectSessionInput{
		{StartedAt: now.Format(time.RFC3339), PlannedDurationSeconds: 1500},
		{
			StartedAt:              now.Add(-time.Hour).Format(time.RFC3339),
			EndedAt:                now.Add(-35 * time.Minute).Format(time.RFC3339),
			PlannedDurationSeconds: 1500,
		},
		// Bad timestamp
		{StartedAt: "soon", PlannedDurationSeconds: 1500},
		// End precedes start
		{
			StartedAt:              now.Format(time.RFC3339),
			EndedAt:                now.Add(-time.Minute).Format(time.RFC3339),
			PlannedDurationSeconds: 1500,
		},
		// Negative planned duration
		{StartedAt: now.Format(time.RFC3339), PlannedDurationSeconds: -10},
	}

	stored, skipped, err := sessions.CollectSessions(dbManager, logger, inputs)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 3, skipped)
}

func TestInRange(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	inside := testsupport.CreateTestFocusSession(t, db, from.Add(9*time.Hour), from.Add(9*time.Hour+25*time.Minute), 1500)
	open := testsupport.CreateTestFocusSession(t, db, from.Add(10*time.Hour), time.Time{}, 3000)
	testsupport.CreateTestFocusSession(t, db, from.Add(-2*time.Hour), from.Add(-time.Hour), 1500)

	rows, err := sessions.InRange(db, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, inside.ID, rows[0].ID)
	assert.Equal(t, open.ID, rows[1].ID)
}
