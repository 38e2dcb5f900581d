package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	DBMaxOpenConns int

	// JWT (issued by the identity service, verified here)
	JWTSecret string

	// Credential vault
	VaultSecret string
	VaultSalt   string

	// Steam
	SteamAPIKey        string
	SteamAPIBaseURL    string
	SteamOpenIDURL     string
	SteamCallbackPath  string
	SteamVerifyTimeout time.Duration
	SteamPlatformSlug  string

	// PlayStation Network
	PSNAPIBaseURL           string
	PSNPlatformFamily       string
	PSNFallbackPlatformSlug string

	// Outbound provider calls
	ProviderTimeout       time.Duration
	ProviderRatePerSecond float64
	ProviderBurst         int

	// Logging
	LogRetentionDays int

	// Server
	Port        string
	CORSOrigins string
	AppEnv      string
	SentryDSN   string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "trophy_sync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 50),

		JWTSecret: getEnv("JWT_SECRET", ""),

		VaultSecret: getEnv("VAULT_SECRET", ""),
		VaultSalt:   getEnv("VAULT_SALT", ""),

		SteamAPIKey:        getEnv("STEAM_API_KEY", ""),
		SteamAPIBaseURL:    getEnv("STEAM_API_BASE_URL", "https://api.steampowered.com"),
		SteamOpenIDURL:     getEnv("STEAM_OPENID_URL", "https://steamcommunity.com/openid/login"),
		SteamCallbackPath:  getEnv("STEAM_CALLBACK_PATH", "/integrations/steam/callback"),
		SteamVerifyTimeout: parseDuration(getEnv("STEAM_VERIFY_TIMEOUT", "5s"), 5*time.Second),
		SteamPlatformSlug:  getEnv("STEAM_PLATFORM_SLUG", "pc"),

		PSNAPIBaseURL:           getEnv("PSN_API_BASE_URL", "https://m.np.playstation.com/api"),
		PSNPlatformFamily:       getEnv("PSN_PLATFORM_FAMILY", "playstation"),
		PSNFallbackPlatformSlug: getEnv("PSN_FALLBACK_PLATFORM_SLUG", ""),

		ProviderTimeout:       parseDuration(getEnv("PROVIDER_TIMEOUT", "15s"), 15*time.Second),
		ProviderRatePerSecond: getEnvFloat("PROVIDER_RATE_PER_SECOND", 5),
		ProviderBurst:         getEnvInt("PROVIDER_BURST", 10),

		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 30),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		AppEnv:      getEnv("APP_ENV", "development"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// Missing returns the names of required variables that are unset.
func (c *Config) Missing() []string {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.DBPassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.VaultSecret == "" {
		missing = append(missing, "VAULT_SECRET")
	}
	if c.VaultSalt == "" {
		missing = append(missing, "VAULT_SALT")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
