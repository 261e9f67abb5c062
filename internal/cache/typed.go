// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// TypedCache stores values of one type as JSON in a Cache.
type TypedCache[T any] struct {
	store Cache
	ttl   time.Duration
}

// NewTypedCache wraps store. ttl applies to Set and GetOrSet.
func NewTypedCache[T any](store Cache, ttl time.Duration) *TypedCache[T] {
	return &TypedCache[T]{store: store, ttl: ttl}
}

// Get decodes the value under key. Misses, backend errors and undecodable
// values all report false.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	v := new(T)
	if json.Unmarshal(raw, v) != nil {
		return nil, false
	}
	return v, true
}

// Set stores v with the default TTL.
func (c *TypedCache[T]) Set(ctx context.Context, key string, v *T) error {
	return c.SetWithTTL(ctx, key, v, c.ttl)
}

// SetWithTTL stores v for ttl.
func (c *TypedCache[T]) SetWithTTL(ctx context.Context, key string, v *T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, raw, ttl)
}

// GetOrSet returns the cached value or loads and stores it. A failed store
// write does not fail the call.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, load func() (*T, error)) (*T, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, v)
	return v, nil
}
