package http

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attently/internal/settings"
)

// SettingsShowAction returns the current analytics settings.
// GET /api/settings
func SettingsShowAction(ctx *cartridge.Context) error {
	return ctx.JSON(fiber.Map{
		"excludedKeywords": settings.GetExcludedKeywords(),
		"dayStartHour":     settings.GetDayStartHour(ctx.DB()),
	})
}

// SettingsUpdateAction updates the suppression list and day-start hour.
// POST /api/settings
func SettingsUpdateAction(ctx *cartridge.Context) error {
	var params struct {
		ExcludedKeywords []string `json:"excludedKeywords"`
		DayStartHour     *int     `json:"dayStartHour"`
	}
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	db := ctx.DB()

	if params.ExcludedKeywords != nil {
		if err := settings.SaveExcludedKeywords(db, params.ExcludedKeywords); err != nil {
			ctx.Logger.Error("Failed to save excluded keywords", slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save excluded keywords",
			})
		}
	}

	if params.DayStartHour != nil {
		if err := settings.SaveDayStartHour(db, *params.DayStartHour); err != nil {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	return ctx.JSON(fiber.Map{
		"excludedKeywords": settings.GetExcludedKeywords(),
		"dayStartHour":     settings.GetDayStartHour(db),
	})
}

// AgentKeyRegenerateAction replaces the agent API key. Agents holding the
// old key are cut off immediately.
// POST /api/settings/agent-key
func AgentKeyRegenerateAction(ctx *cartridge.Context) error {
	key, err := settings.GenerateAgentAPIKey(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to regenerate agent API key", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to regenerate agent API key",
		})
	}
	return ctx.JSON(fiber.Map{"apiKey": key})
}
