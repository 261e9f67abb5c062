// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package deferred is an at-least-once, cron-driven task queue keyed by
// action name and payload. It backs asynchronous event delivery and
// delivery retries.
package deferred

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/olegiv/stalkfish-go/internal/store"
)

// Queue accepts work for later execution.
type Queue interface {
	// Enqueue schedules action to run as soon as a runner picks it up.
	Enqueue(ctx context.Context, action string, payload any) error
	// ScheduleAt schedules action to run no earlier than at.
	ScheduleAt(ctx context.Context, at time.Time, action string, payload any) error
}

// SQLQueue persists actions in the deferred_actions table.
type SQLQueue struct {
	queries *store.Queries
	now     func() time.Time
}

// NewSQLQueue creates a queue on db.
func NewSQLQueue(db *sql.DB) *SQLQueue {
	return &SQLQueue{queries: store.New(db), now: time.Now}
}

// Enqueue implements Queue.
func (q *SQLQueue) Enqueue(ctx context.Context, action string, payload any) error {
	return q.ScheduleAt(ctx, q.now(), action, payload)
}

// ScheduleAt implements Queue.
func (q *SQLQueue) ScheduleAt(ctx context.Context, at time.Time, action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", action, err)
	}
	err = q.queries.CreateDeferredAction(ctx, store.CreateDeferredActionParams{
		ID:        uuid.NewString(),
		Action:    action,
		Payload:   string(raw),
		RunAt:     at,
		CreatedAt: q.now(),
	})
	if err != nil {
		return fmt.Errorf("queueing %s: %w", action, err)
	}
	return nil
}

var _ Queue = (*SQLQueue)(nil)
