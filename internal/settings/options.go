// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package settings holds the persisted key/value settings blob shared by
// the event pipeline, the error tracker and the management endpoints.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// ChangeFunc is called after a setting is written or deleted.
type ChangeFunc func(ctx context.Context, key string)

// Options is an in-memory view of the settings blob backed by a Backend.
// Reads never touch the backend; writes go through it first.
type Options struct {
	backend Backend
	logger  *slog.Logger

	mu        sync.RWMutex
	values    map[string][]byte
	listeners []ChangeFunc
}

// Open loads all settings from backend.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) (*Options, error) {
	values, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if values == nil {
		values = make(map[string][]byte)
	}
	return &Options{backend: backend, logger: logger, values: values}, nil
}

// NewMemory returns empty options kept in memory only.
func NewMemory(logger *slog.Logger) *Options {
	return &Options{backend: NewMemoryBackend(), logger: logger, values: make(map[string][]byte)}
}

// OnChange registers fn to run after every Set or Delete.
func (o *Options) OnChange(fn ChangeFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Has reports whether key is stored.
func (o *Options) Has(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.values[key]
	return ok
}

// Get decodes the value for key into dst. It reports false when the key is
// absent or cannot be decoded into dst.
func (o *Options) Get(key string, dst any) bool {
	o.mu.RLock()
	raw, ok := o.values[key]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		if o.logger != nil {
			o.logger.Warn("undecodable setting", "key", key, "error", err)
		}
		return false
	}
	return true
}

// String returns the string setting for key or def.
func (o *Options) String(key, def string) string {
	var s string
	if !o.Get(key, &s) {
		return def
	}
	return s
}

// Bool returns the boolean setting for key or def. Stored strings "1",
// "true" and "on" count as true.
func (o *Options) Bool(key string, def bool) bool {
	var v any
	if !o.Get(key, &v) {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "1" || b == "true" || b == "on"
	case float64:
		return b != 0
	default:
		return def
	}
}

// Set stores value under key.
func (o *Options) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	if err := o.backend.Save(ctx, key, raw); err != nil {
		return err
	}

	o.mu.Lock()
	o.values[key] = raw
	listeners := o.listeners
	o.mu.Unlock()

	o.notify(ctx, key, listeners)
	return nil
}

// Delete removes key.
func (o *Options) Delete(ctx context.Context, key string) error {
	if err := o.backend.Delete(ctx, key); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.values, key)
	listeners := o.listeners
	o.mu.Unlock()

	o.notify(ctx, key, listeners)
	return nil
}

func (o *Options) notify(ctx context.Context, key string, listeners []ChangeFunc) {
	for _, fn := range listeners {
		fn(ctx, key)
	}
}

// APIKey returns the collector API key, or "" when none is configured.
func (o *Options) APIKey() string {
	return o.String(KeyAPIKey, "")
}

// RequestType returns the configured delivery mode. Anything other than
// "immediate" is treated as async.
func (o *Options) RequestType() model.RequestType {
	if model.RequestType(o.String(KeyRequestType, "")) == model.RequestImmediate {
		return model.RequestImmediate
	}
	return model.RequestAsync
}

// ActivityLogsEnabled reports whether activity events are recorded.
func (o *Options) ActivityLogsEnabled() bool {
	return o.Bool(KeyActivityLogs, true)
}

// ErrorLogsEnabled reports whether error reports are recorded.
func (o *Options) ErrorLogsEnabled() bool {
	return o.Bool(KeyErrorLogs, true)
}

// ExclusionRules returns the stored rule list.
func (o *Options) ExclusionRules() []model.ExclusionRule {
	var rules []model.ExclusionRule
	if !o.Get(KeyExcludeRules, &rules) {
		return nil
	}
	return rules
}
