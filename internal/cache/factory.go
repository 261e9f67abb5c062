// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"fmt"
	"net/url"
	"time"
)

// Config selects and sizes the transient store.
type Config struct {
	// RedisURL selects Redis when set, for example redis://localhost:6379/0.
	RedisURL      string
	Prefix        string
	DefaultTTL    time.Duration
	MaxEntries    int // memory store only
	SweepInterval time.Duration
}

// DefaultConfig returns the memory store settings used by the service.
func DefaultConfig() Config {
	return Config{
		Prefix:        "stalkfish:",
		DefaultTTL:    time.Minute,
		MaxEntries:    10000,
		SweepInterval: time.Minute,
	}
}

// New creates a Redis store when RedisURL is set and a memory store otherwise.
func New(cfg Config) (Cache, error) {
	if cfg.RedisURL == "" {
		return NewMemoryCache(MemoryCacheOptions{
			DefaultTTL:    cfg.DefaultTTL,
			MaxEntries:    cfg.MaxEntries,
			SweepInterval: cfg.SweepInterval,
		}), nil
	}
	c, err := NewRedisCacheFromURL(cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", SanitizeRedisURL(cfg.RedisURL), err)
	}
	return c, nil
}

// SanitizeRedisURL masks the password in a Redis URL for logging.
func SanitizeRedisURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
