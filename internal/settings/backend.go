// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package settings

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/olegiv/stalkfish-go/internal/store"
)

// Backend persists encoded option values.
type Backend interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SQLBackend keeps options in the options table.
type SQLBackend struct {
	queries *store.Queries
}

// NewSQLBackend creates a backend on db.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{queries: store.New(db)}
}

// Load implements Backend.
func (b *SQLBackend) Load(ctx context.Context) (map[string][]byte, error) {
	items, err := b.queries.ListOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing options: %w", err)
	}
	out := make(map[string][]byte, len(items))
	for _, o := range items {
		out[o.Name] = []byte(o.Value)
	}
	return out, nil
}

// Save implements Backend.
func (b *SQLBackend) Save(ctx context.Context, key string, value []byte) error {
	if err := b.queries.UpsertOption(ctx, store.UpsertOptionParams{
		Name:      key,
		Value:     string(value),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("saving option %s: %w", key, err)
	}
	return nil
}

// Delete implements Backend.
func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if err := b.queries.DeleteOption(ctx, key); err != nil {
		return fmt.Errorf("deleting option %s: %w", key, err)
	}
	return nil
}

// MemoryBackend keeps options in process memory.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Load implements Backend.
func (b *MemoryBackend) Load(context.Context) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.data), nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

var (
	_ Backend = (*SQLBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)
