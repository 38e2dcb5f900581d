package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/database"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/repository"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/routes"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/services"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/vault"
)

var version = "dev"

func main() {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := config.Load()
	stdout := logging.NewJSONHandler(os.Stdout, cfg.AppEnv)
	logging.Setup(stdout)

	if missing := cfg.Missing(); len(missing) > 0 {
		slog.Error("required environment variables are not set", "missing", strings.Join(missing, ","))
		os.Exit(1)
	}

	key, err := vault.DeriveKey(vault.KeyConfig{Secret: cfg.VaultSecret, Salt: cfg.VaultSalt})
	if err != nil {
		slog.Error("vault key derivation failed", "error", err)
		os.Exit(1)
	}
	credentialVault, err := vault.New(key)
	if err != nil {
		slog.Error("vault init failed", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// ERROR+ records are also batched into system_logs
	pgLogHandler := logging.NewPGHandler(db)
	logger := logging.Setup(stdout, pgLogHandler)

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetentionDays, cleanupDone)

	// Repositories
	gameRepo := repository.NewGameRepository(db, logger)
	platformRepo := repository.NewPlatformRepository(db, logger)
	achievementRepo := repository.NewAchievementRepository(db, logger)
	credentialRepo := repository.NewCredentialRepository(db, logger)

	// Provider adapters
	clientCfg := sources.ClientConfig{
		Timeout:       cfg.ProviderTimeout,
		RatePerSecond: cfg.ProviderRatePerSecond,
		Burst:         cfg.ProviderBurst,
	}
	steamClient := sources.NewSteamClient(sources.SteamConfig{
		APIKey:  cfg.SteamAPIKey,
		BaseURL: cfg.SteamAPIBaseURL,
		Client:  clientCfg,
	}, logger)
	psnClient := sources.NewPSNClient(sources.PSNConfig{
		BaseURL: cfg.PSNAPIBaseURL,
		Client:  clientCfg,
	}, logger)
	registry := sources.NewRegistry(steamClient, psnClient)
	verifier := sources.NewOpenIDVerifier(cfg.SteamOpenIDURL, cfg.SteamVerifyTimeout, nil, logger)

	// Services
	credentialService := services.NewCredentialService(credentialRepo, credentialVault, logger)
	achievementService := services.NewAchievementService(
		gameRepo, platformRepo, achievementRepo, credentialService, registry,
		services.AttributionConfig{
			SteamPlatformSlug:       cfg.SteamPlatformSlug,
			PSNPlatformFamily:       cfg.PSNPlatformFamily,
			PSNFallbackPlatformSlug: cfg.PSNFallbackPlatformSlug,
		},
		logger,
	)
	steamLinkService := services.NewSteamLinkService(verifier, steamClient, credentialService, cfg.SteamCallbackPath, logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
			Release:          version,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	routes.Setup(app, cfg, routes.Handlers{
		Health:       handlers.NewHealthHandler(db, version),
		Achievements: handlers.NewAchievementHandler(achievementService),
		Credentials:  handlers.NewCredentialHandler(credentialService),
		SteamLink:    handlers.NewSteamLinkHandler(steamLinkService),
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "version", version)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// 5xx details stay in the logs
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "request_id", c.Locals("requestid"), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
