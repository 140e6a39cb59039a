// Package v1 contains the agent-facing ingest API: tracker agents push
// activity intervals, behavior events, focus sessions, and pre-aggregated
// rollups here. All endpoints require the agent API key.
package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attently/internal/engagement"
	"attently/internal/intervals"
	"attently/internal/rollups"
	"attently/internal/sessions"
)

const errInvalidRequest = "Invalid request body"

// CreateIntervalsHandler stores a batch of activity intervals.
// POST /api/v1/intervals
func CreateIntervalsHandler(ctx *cartridge.Context) error {
	var params struct {
		Intervals []intervals.CollectIntervalInput `json:"intervals"`
	}
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	stored, skipped, err := intervals.CollectIntervals(ctx.DBManager, ctx.Logger, params.Intervals)
	if err != nil {
		ctx.Logger.Error("Failed to collect intervals", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store intervals",
		})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"stored":  stored,
		"skipped": skipped,
	})
}

// CreateBehaviorEventsHandler stores a batch of behavior events.
// POST /api/v1/behavior-events
func CreateBehaviorEventsHandler(ctx *cartridge.Context) error {
	var params struct {
		Events []engagement.BehaviorEventInput `json:"events"`
	}
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	stored, skipped, err := engagement.IngestBehaviorEvents(ctx.DBManager, ctx.Logger, params.Events)
	if err != nil {
		ctx.Logger.Error("Failed to ingest behavior events", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store behavior events",
		})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"stored":  stored,
		"skipped": skipped,
	})
}

// CreateSessionsHandler stores a batch of focus sessions.
// POST /api/v1/sessions
func CreateSessionsHandler(ctx *cartridge.Context) error {
	var params struct {
		Sessions []sessions.CollectSessionInput `json:"sessions"`
	}
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	stored, skipped, err := sessions.CollectSessions(ctx.DBManager, ctx.Logger, params.Sessions)
	if err != nil {
		ctx.Logger.Error("Failed to collect focus sessions", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store focus sessions",
		})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"stored":  stored,
		"skipped": skipped,
	})
}

// UpsertRollupsHandler accepts pre-aggregated rollups pushed by a peer
// device for sync.
// POST /api/v1/rollups
func UpsertRollupsHandler(ctx *cartridge.Context) error {
	var params struct {
		Rollups []rollups.ActivityRollup `json:"rollups"`
	}
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if err := rollups.UpsertRollups(ctx.Logger, ctx.DB(), params.Rollups); err != nil {
		ctx.Logger.Error("Failed to upsert synced rollups", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store rollups",
		})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"stored": len(params.Rollups),
	})
}

// ListRollupsHandler returns rollups updated since the given cursor, for a
// peer pulling changes.
// GET /api/v1/rollups?since=<RFC3339>
func ListRollupsHandler(ctx *cartridge.Context) error {
	since := time.Time{}
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid since parameter, expected RFC3339",
			})
		}
		since = parsed
	}

	rows, err := rollups.ListSince(ctx.DB(), since)
	if err != nil {
		ctx.Logger.Error("Failed to list rollups", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list rollups",
		})
	}

	return ctx.Ctx.JSON(fiber.Map{"rollups": rows})
}
