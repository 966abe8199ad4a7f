/*
Package config loads the engine's runtime configuration.

PURPOSE:
  A single explicit Config struct, loaded once at startup from the
  environment (with optional .env file) and passed to the components
  that need it. Nothing reads the environment after startup.

VARIABLES:
  PORT                     HTTP listen port (default 8080)
  DB_DRIVER                "sqlite" or "postgres" (default sqlite)
  DB_DSN                   path for sqlite, DSN for postgres
  SCAN_INTERVAL            due-date scan interval (default 1m)
  TRIGGER_TIMEOUT          per-row trigger budget (default 30s)
  EXPIRY_GRACE_DAYS        days past due before expiry (default 3)
  SCAN_ENABLED             enable the scan driver (default true)
  VERIFY_BEFORE_POSTING    hold transactions in pending (default false)
  NOTIFICATION_URL         endpoint for reminder delivery (optional)
  LOG_LEVEL                zerolog level name (default info)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the engine's full runtime configuration.
type Config struct {
	Port int

	DBDriver string
	DBDSN    string

	ScanInterval    time.Duration
	TriggerTimeout  time.Duration
	ExpiryGraceDays int
	ScanEnabled     bool

	VerifyBeforePosting bool

	NotificationURL string
	LogLevel        string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present; real environment
// variables win.
func Load() (Config, error) {
	// Missing .env is fine; it is a dev convenience.
	_ = godotenv.Load()

	cfg := Config{
		Port:                envInt("PORT", 8080),
		DBDriver:            envString("DB_DRIVER", "sqlite"),
		DBDSN:               envString("DB_DSN", "./data/ledger.db"),
		ScanInterval:        envDuration("SCAN_INTERVAL", time.Minute),
		TriggerTimeout:      envDuration("TRIGGER_TIMEOUT", 30*time.Second),
		ExpiryGraceDays:     envInt("EXPIRY_GRACE_DAYS", 3),
		ScanEnabled:         envBool("SCAN_ENABLED", true),
		VerifyBeforePosting: envBool("VERIFY_BEFORE_POSTING", false),
		NotificationURL:     envString("NOTIFICATION_URL", ""),
		LogLevel:            envString("LOG_LEVEL", "info"),
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return cfg, fmt.Errorf("unknown DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
