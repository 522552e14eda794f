package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Token string // bot token for the chat platform
	Env   string
	Port  string // ops/admin HTTP listener

	SQLitePath  string
	DatabaseURL string // PostgreSQL; takes precedence over SQLite when set
	RedisURL    string // optional, enables event deduplication

	// Bcrypt hash of the admin API bearer token. Empty disables the
	// admin endpoints.
	AdminTokenHash string

	SweepInterval time.Duration

	// Platform endpoints, overridable for testing against a stub.
	APIBaseURL string
	GatewayURL string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on missing or malformed required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Token:          os.Getenv("TOKEN"),
		Env:            getEnv("ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		APIBaseURL:     os.Getenv("API_BASE_URL"),
		GatewayURL:     os.Getenv("GATEWAY_URL"),
	}

	if cfg.Token == "" {
		panic("TOKEN is required")
	}

	interval := getEnv("SWEEP_INTERVAL", "60s")
	d, err := time.ParseDuration(interval)
	if err != nil {
		panic(fmt.Sprintf("invalid SWEEP_INTERVAL %q: %v", interval, err))
	}
	cfg.SweepInterval = d

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
