// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the short-lived key/value store used for
// transient state such as the last-sent error fingerprint and the
// key-generation backoff marker.
package cache

import (
	"context"
	"time"
)

// Cache is a transient store. Entries disappear after their TTL, and a
// missing entry is never an error the caller must act on.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for ttl. A zero ttl uses the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Error is a cache sentinel error.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss means the key is absent or expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed means the store was closed.
	ErrCacheClosed Error = "cache closed"
)
