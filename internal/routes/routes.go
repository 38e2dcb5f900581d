package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/middleware"
)

// Handlers groups everything routed under /api.
type Handlers struct {
	Health       *handlers.HealthHandler
	Achievements *handlers.AchievementHandler
	Credentials  *handlers.CredentialHandler
	SteamLink    *handlers.SteamLinkHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// JWT is attached per group so /api/health stays public
	jwt := middleware.JWTProtected(cfg)

	games := api.Group("/games/:id/achievements", jwt)
	games.Get("/", h.Achievements.List)
	games.Get("/progress", h.Achievements.Progress)
	// syncs hit provider quotas, keep them tighter
	games.Post("/sync", limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), h.Achievements.Sync)

	creds := api.Group("/credentials", jwt)
	creds.Get("/", h.Credentials.List)
	creds.Put("/:service", h.Credentials.Save)
	creds.Delete("/:service", h.Credentials.Delete)

	steam := api.Group("/integrations/steam", jwt)
	steam.Get("/login-url", h.SteamLink.LoginURL)
	steam.Post("/verify", h.SteamLink.Verify)
	steam.Delete("/", h.SteamLink.Unlink)
}
