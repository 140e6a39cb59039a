package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"attently/internal/patterns"
	"attently/internal/pkg/async"
	"attently/internal/reports"
)

// DashboardResponse bundles every report section the dashboard renders in
// one payload, so the UI makes a single request on load.
type DashboardResponse struct {
	Overview  *reports.AnalyticsOverview   `json:"overview"`
	TimeOfDay []reports.TimeOfDayStat      `json:"timeOfDay"`
	Trends    []reports.TrendPoint         `json:"trends"`
	Patterns  []patterns.BehavioralPattern `json:"patterns"`
}

// DashboardAction computes all dashboard sections concurrently. A failed
// section leaves its field empty; the dashboard always renders.
// GET /api/dashboard?days=7&granularity=daily
func DashboardAction(ctx *cartridge.Context) error {
	days := queryDays(ctx)
	granularity := ctx.Query("granularity", reports.GranularityDaily)

	db := ctx.DB()
	logger := ctx.Logger
	builder := reports.NewBuilder(db, logger)
	miner := patterns.NewMiner(db, logger)

	tasks := []async.Task{
		{
			Name: "overview",
			Execute: func() (any, error) {
				return builder.GetOverview(days), nil
			},
		},
		{
			Name: "timeOfDay",
			Execute: func() (any, error) {
				return builder.GetTimeOfDayAnalysis(days), nil
			},
		},
		{
			Name: "trends",
			Execute: func() (any, error) {
				return builder.GetTrends(granularity), nil
			},
		},
		{
			Name: "patterns",
			Execute: func() (any, error) {
				return miner.GetBehavioralPatterns(days)
			},
		},
	}

	taskCtx, cancel := context.WithTimeout(ctx.Ctx.Context(), 30*time.Second)
	defer cancel()

	pool := async.NewPool(len(tasks))
	results := pool.Execute(taskCtx, tasks)

	response := &DashboardResponse{}
	if r, ok := results["overview"]; ok && r.Err == nil {
		response.Overview = r.Data.(*reports.AnalyticsOverview)
	}
	if r, ok := results["timeOfDay"]; ok && r.Err == nil {
		response.TimeOfDay = r.Data.([]reports.TimeOfDayStat)
	}
	if r, ok := results["trends"]; ok && r.Err == nil {
		response.Trends = r.Data.([]reports.TrendPoint)
	}
	if r, ok := results["patterns"]; ok && r.Err == nil {
		response.Patterns = r.Data.([]patterns.BehavioralPattern)
	}

	for name, r := range results {
		if r.Err != nil {
			logger.Error("Dashboard section failed",
				slog.String("section", name), slog.Any("error", r.Err))
		}
	}

	return ctx.JSON(response)
}
