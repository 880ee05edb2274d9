// Package config loads and validates the trader's runtime configuration.
// In development, values are read from a .env file via godotenv (matching
// aristath/arduino-trader's internal/config/loader.go); in production the
// process environment is authoritative. Missing the encryption key is a
// configuration-fatal error: the process must refuse to start.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every externally-set knob the trading system reads at startup.
type Config struct {
	DatabaseURL   string
	RedisURL      string
	EncryptionKey string // required, no default
	Environment   string // development | production
	LogLevel      string

	NWSUserAgent          string
	NWSRateLimitPerSecond float64

	DefaultMaxTradeSizeCents     int64
	DefaultDailyLossLimitCents   int64
	DefaultMaxDailyExposureCents int64
	DefaultMinEVThreshold        float64
	DefaultCooldownMinutes       int
	DefaultConsecutiveLossLimit  int
	KellyCap                     float64
	MLEnsembleWeight             float64
	FreshnessCapMinutes          int
	ApprovalWindowMinutes        int

	KalshiKeyID         string
	KalshiPrivateKeyPEM string // encrypted at rest; decrypted via internal/cryptoutil at use time
}

// Load reads configuration from a .env file (development convenience) and
// the process environment, applying sane production defaults.
// It returns an error — never panics — so callers can log and os.Exit(1).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on process environment", "err", err)
	}

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		Environment:   envOr("ENVIRONMENT", "development"),
		LogLevel:      envOr("LOG_LEVEL", "info"),

		NWSUserAgent:          envOr("NWS_USER_AGENT", "boz-weather-trader (contact@example.com)"),
		NWSRateLimitPerSecond: envFloatOr("NWS_RATE_LIMIT_PER_SECOND", 1.0),

		DefaultMaxTradeSizeCents:     envIntOr("DEFAULT_MAX_TRADE_SIZE_CENTS", 10000),
		DefaultDailyLossLimitCents:   envIntOr("DEFAULT_DAILY_LOSS_LIMIT_CENTS", 5000),
		DefaultMaxDailyExposureCents: envIntOr("DEFAULT_MAX_DAILY_EXPOSURE_CENTS", 50000),
		DefaultMinEVThreshold:        envFloatOr("DEFAULT_MIN_EV_THRESHOLD", 0.05),
		DefaultCooldownMinutes:       int(envIntOr("DEFAULT_COOLDOWN_MINUTES", 60)),
		DefaultConsecutiveLossLimit:  int(envIntOr("DEFAULT_CONSECUTIVE_LOSS_LIMIT", 3)),
		KellyCap:                     envFloatOr("KELLY_CAP", 0.25),
		MLEnsembleWeight:             envFloatOr("ML_ENSEMBLE_WEIGHT", 0.0),
		FreshnessCapMinutes:          int(envIntOr("FRESHNESS_CAP_MINUTES", 120)),
		ApprovalWindowMinutes:        int(envIntOr("APPROVAL_WINDOW_MINUTES", 30)),

		KalshiKeyID:         os.Getenv("KALSHI_KEY_ID"),
		KalshiPrivateKeyPEM: os.Getenv("KALSHI_PRIVATE_KEY_PEM"),
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY is required and has no default")
	}

	return cfg, nil
}

// CooldownDuration returns the configured cooldown-per-loss as a Duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.DefaultCooldownMinutes) * time.Minute
}

// FreshnessCap returns the forecast freshness cap as a Duration.
func (c *Config) FreshnessCap() time.Duration {
	return time.Duration(c.FreshnessCapMinutes) * time.Minute
}

// ApprovalWindow returns the manual-approval TTL as a Duration.
func (c *Config) ApprovalWindow() time.Duration {
	return time.Duration(c.ApprovalWindowMinutes) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
