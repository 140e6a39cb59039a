package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "attently/api/v1"
	"attently/internal/config"
	"attently/internal/http"
	"attently/internal/http/middleware"
)

// agentCORSConfig is the CORS configuration for the agent ingest API. The
// browser extension posts behavior events cross-origin.
var agentCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; in development and test it
	// would interfere with batched agent pushes and test runs.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Agents push in batches every few minutes; 70 req/min per IP leaves
	// plenty of headroom while capping runaway clients.
	ingestRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	agentAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{
			ingestRateLimiter,
			middleware.AgentAPIKeyAuth(db, logger),
		},
		CORSConfig: agentCORSConfig,
	}

	corsPreflightConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: agentCORSConfig,
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === AGENT INGEST API ===
	srv.Post("/api/v1/intervals", v1.CreateIntervalsHandler, agentAPIConfig)
	srv.Options("/api/v1/intervals", corsPreflight, corsPreflightConfig)
	srv.Post("/api/v1/behavior-events", v1.CreateBehaviorEventsHandler, agentAPIConfig)
	srv.Options("/api/v1/behavior-events", corsPreflight, corsPreflightConfig)
	srv.Post("/api/v1/sessions", v1.CreateSessionsHandler, agentAPIConfig)
	srv.Options("/api/v1/sessions", corsPreflight, corsPreflightConfig)

	// === ROLLUP SYNC ===
	srv.Post("/api/v1/rollups", v1.UpsertRollupsHandler, agentAPIConfig)
	srv.Get("/api/v1/rollups", v1.ListRollupsHandler, agentAPIConfig)

	// === ANALYTICS API ===
	srv.Get("/api/dashboard", http.DashboardAction)
	srv.Get("/api/analytics/overview", http.OverviewAction)
	srv.Get("/api/analytics/time-of-day", http.TimeOfDayAction)
	srv.Get("/api/analytics/trends", http.TrendsAction)
	srv.Get("/api/analytics/engagement", http.EngagementAction)
	srv.Get("/api/analytics/patterns", http.PatternsAction)

	// === SETTINGS API ===
	srv.Get("/api/settings", http.SettingsShowAction)
	srv.Post("/api/settings", http.SettingsUpdateAction)
	srv.Post("/api/settings/agent-key", http.AgentKeyRegenerateAction)
}

func corsPreflight(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}
