// Package http contains the read-side JSON API: reports, engagement
// metrics, behavioral patterns, and the combined dashboard payload.
package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attently/internal/engagement"
	"attently/internal/patterns"
	"attently/internal/reports"
)

const defaultReportDays = 7

// queryDays reads the days query parameter; the report layer clamps it.
func queryDays(ctx *cartridge.Context) int {
	days, err := strconv.Atoi(ctx.Query("days", strconv.Itoa(defaultReportDays)))
	if err != nil {
		return defaultReportDays
	}
	return days
}

// OverviewAction returns the analytics overview for a trailing window.
// GET /api/analytics/overview?days=7
func OverviewAction(ctx *cartridge.Context) error {
	builder := reports.NewBuilder(ctx.DB(), ctx.Logger)
	return ctx.JSON(builder.GetOverview(queryDays(ctx)))
}

// TimeOfDayAction returns the 24 shifted hour-of-day buckets.
// GET /api/analytics/time-of-day?days=7
func TimeOfDayAction(ctx *cartridge.Context) error {
	builder := reports.NewBuilder(ctx.DB(), ctx.Logger)
	return ctx.JSON(fiber.Map{
		"buckets": builder.GetTimeOfDayAnalysis(queryDays(ctx)),
	})
}

// TrendsAction returns trend buckets at the requested granularity.
// GET /api/analytics/trends?granularity=daily
func TrendsAction(ctx *cartridge.Context) error {
	granularity := ctx.Query("granularity", reports.GranularityDaily)
	builder := reports.NewBuilder(ctx.DB(), ctx.Logger)
	return ctx.JSON(fiber.Map{
		"granularity": granularity,
		"points":      builder.GetTrends(granularity),
	})
}

// EngagementAction returns the engagement metrics for one domain.
// GET /api/analytics/engagement?domain=example.com&days=7
func EngagementAction(ctx *cartridge.Context) error {
	domain := ctx.Query("domain")
	if domain == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "domain parameter is required",
		})
	}
	return ctx.JSON(engagement.GetMetrics(ctx.DB(), ctx.Logger, domain, queryDays(ctx)))
}

// PatternsAction returns the mined behavioral patterns, recomputing them
// first if stale.
// GET /api/analytics/patterns?days=7
func PatternsAction(ctx *cartridge.Context) error {
	miner := patterns.NewMiner(ctx.DB(), ctx.Logger)
	rows, err := miner.GetBehavioralPatterns(queryDays(ctx))
	if err != nil {
		ctx.Logger.Error("Failed to load behavioral patterns", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load behavioral patterns",
		})
	}
	return ctx.JSON(fiber.Map{"patterns": rows})
}
