// Package v1_test contains tests for the agent ingest API handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attently/internal/engagement"
	"attently/internal/intervals"
	"attently/internal/settings"
	"attently/internal/testsupport"
)

func postJSON(t *testing.T, path, apiKey string, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req
}

func TestCreateIntervalsHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	apiKey, err := settings.GetOrCreateAgentAPIKey(db)
	require.NoError(t, err)

	t.Run("rejects requests without the agent key", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		req := postJSON(t, "/api/v1/intervals", "", map[string]any{"intervals": []any{}})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		req := postJSON(t, "/api/v1/intervals", "not-the-key", map[string]any{"intervals": []any{}})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stores a valid batch and reports skipped rows", func(t *testing.T) {
		testsupport.CleanActivityData(db)

		now := time.Now().UTC()
		payload := map[string]any{
			"intervals": []map[string]any{
				{
					"deviceId": "laptop", "domain": "github.com", "category": intervals.CategoryProductive,
					"startedAt": now.Format(time.RFC3339), "secondsActive": 300,
				},
				{
					"deviceId": "laptop", "domain": "twitter.com", "category": intervals.CategoryFrivolity,
					"startedAt": now.Format(time.RFC3339), "endedAt": now.Add(5 * time.Minute).Format(time.RFC3339),
					"secondsActive": 280, "idleSeconds": 20,
				},
				{
					"deviceId": "laptop", "domain": "bad.example", "startedAt": "yesterday-ish",
				},
			},
		}

		req := postJSON(t, "/api/v1/intervals", apiKey, payload)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var respBody map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&respBody))
		assert.Equal(t, float64(2), respBody["stored"])
		assert.Equal(t, float64(1), respBody["skipped"])

		var count int64
		require.NoError(t, db.Model(&intervals.ActivityInterval{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/intervals", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateBehaviorEventsHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	apiKey, err := settings.GetOrCreateAgentAPIKey(db)
	require.NoError(t, err)

	testsupport.CleanActivityData(db)

	now := time.Now().UTC()
	payload := map[string]any{
		"events": []map[string]any{
			{"domain": "github.com", "eventType": engagement.EventTypeClick, "valueInt": 1, "timestamp": now.Format(time.RFC3339)},
			{"domain": "github.com", "eventType": engagement.EventTypeScroll, "valueFloat": 120.5, "timestamp": now.Format(time.RFC3339)},
			{"domain": "github.com", "eventType": "hover", "timestamp": now.Format(time.RFC3339)},
		},
	}

	req := postJSON(t, "/api/v1/behavior-events", apiKey, payload)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var respBody map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&respBody))
	assert.Equal(t, float64(2), respBody["stored"])
	assert.Equal(t, float64(1), respBody["skipped"])
}

func TestRollupSyncHandlers(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	apiKey, err := settings.GetOrCreateAgentAPIKey(db)
	require.NoError(t, err)

	testsupport.CleanActivityData(db)

	hour := time.Now().UTC().Truncate(time.Hour)
	payload := map[string]any{
		"rollups": []map[string]any{
			{
				"DeviceID": "phone", "HourStart": hour.Format(time.RFC3339),
				"ProductiveSeconds": 1200.0, "NeutralSeconds": 300.0,
			},
		},
	}

	req := postJSON(t, "/api/v1/rollups", apiKey, payload)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Pull the synced rollup back out with a cursor before the write.
	since := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	getReq := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/rollups?since=%s", since), nil)
	getReq.Header.Set("Authorization", "Bearer "+apiKey)

	getResp, err := app.Test(getReq, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var listBody struct {
		Rollups []map[string]any `json:"rollups"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&listBody))
	require.Len(t, listBody.Rollups, 1)
	assert.Equal(t, "phone", listBody.Rollups[0]["DeviceID"])

	t.Run("rejects a bad cursor", func(t *testing.T) {
		badReq := httptest.NewRequest("GET", "/api/v1/rollups?since=last-tuesday", nil)
		badReq.Header.Set("Authorization", "Bearer "+apiKey)

		badResp, err := app.Test(badReq, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	})
}
