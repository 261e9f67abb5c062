// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"

	"github.com/olegiv/stalkfish-go/internal/util"
)

// DefaultCollectorURL is the hosted collector.
const DefaultCollectorURL = "https://app.stalkfish.com"

// knownWeakSecrets contains example tokens that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-admin-token",
	"REPLACE_WITH_YOUR_OWN_ADMIN_TOKEN",
}

// Config holds the process configuration loaded from environment variables.
// Product settings that change at runtime (API key, rules, request type)
// live in the settings store instead.
type Config struct {
	DBPath     string `env:"SF_DB_PATH" envDefault:"./data/stalkfish.db"`
	AdminToken string `env:"SF_ADMIN_TOKEN,required"`
	ServerHost string `env:"SF_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"SF_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"SF_ENV" envDefault:"development"`
	LogLevel   string `env:"SF_LOG_LEVEL" envDefault:"info"`

	// Collector
	CollectorURL   string        `env:"SF_COLLECTOR_URL" envDefault:"https://app.stalkfish.com"`
	HTTPTimeout    time.Duration `env:"SF_HTTP_TIMEOUT" envDefault:"10s"`
	SiteURL        string        `env:"SF_SITE_URL"`     // Public URL of the monitored site
	HostVersion    string        `env:"SF_HOST_VERSION"` // CMS version reported in runtime metadata
	MaxPayloadSize int           `env:"SF_MAX_PAYLOAD_SIZE" envDefault:"524288"`
	BatchReports   bool          `env:"SF_BATCH_REPORTS" envDefault:"true"`

	// Deferred delivery
	RetryDelay       time.Duration `env:"SF_RETRY_DELAY" envDefault:"60s"`
	RetryLimit       int           `env:"SF_RETRY_LIMIT" envDefault:"0"` // 0 = unbounded
	DeferredSchedule string        `env:"SF_DEFERRED_SCHEDULE" envDefault:"@every 10s"`
	DeferredBatch    int           `env:"SF_DEFERRED_BATCH" envDefault:"25"`

	// Cache configuration
	RedisURL    string `env:"SF_REDIS_URL"` // Optional Redis URL for shared transient state
	CachePrefix string `env:"SF_CACHE_PREFIX" envDefault:"stalkfish:"`

	// Inbound rate limiting for the sf-api endpoint
	RateLimitRPS   float64 `env:"SF_RATE_LIMIT_RPS" envDefault:"1"`
	RateLimitBurst int     `env:"SF_RATE_LIMIT_BURST" envDefault:"5"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// MinAdminTokenLength is the minimum length of the admin bearer token.
const MinAdminTokenLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.AdminToken) < MinAdminTokenLength {
		return nil, fmt.Errorf("SF_ADMIN_TOKEN must be at least %d bytes long, got %d bytes; "+
			"generate one with: openssl rand -base64 32",
			MinAdminTokenLength, len(cfg.AdminToken))
	}
	for _, weak := range knownWeakSecrets {
		if cfg.AdminToken == weak {
			return nil, fmt.Errorf("SF_ADMIN_TOKEN is a known default value and must not be used")
		}
	}
	if !hasMinimumEntropy(cfg.AdminToken) {
		slog.Warn("SF_ADMIN_TOKEN has low character diversity; " +
			"consider generating a random token with: openssl rand -base64 32")
	}

	if err := util.ValidateHTTPURL(cfg.CollectorURL); err != nil {
		return nil, fmt.Errorf("SF_COLLECTOR_URL %q: %w", cfg.CollectorURL, err)
	}
	cfg.CollectorURL = strings.TrimRight(cfg.CollectorURL, "/")

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("SF_HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout)
	}
	if cfg.MaxPayloadSize <= 0 {
		return nil, fmt.Errorf("SF_MAX_PAYLOAD_SIZE must be positive, got %d", cfg.MaxPayloadSize)
	}
	if cfg.RetryLimit < 0 {
		return nil, fmt.Errorf("SF_RETRY_LIMIT must not be negative, got %d", cfg.RetryLimit)
	}
	if cfg.DeferredBatch <= 0 {
		return nil, fmt.Errorf("SF_DEFERRED_BATCH must be positive, got %d", cfg.DeferredBatch)
	}
	if _, err := cron.ParseStandard(cfg.DeferredSchedule); err != nil {
		return nil, fmt.Errorf("SF_DEFERRED_SCHEDULE %q: %w", cfg.DeferredSchedule, err)
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
