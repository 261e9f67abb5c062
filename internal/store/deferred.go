// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// Deferred action statuses.
const (
	DeferredPending  = "pending"
	DeferredRunning  = "running"
	DeferredComplete = "complete"
	DeferredFailed   = "failed"
)

// DeferredAction is a queued unit of work.
type DeferredAction struct {
	ID        string
	Action    string
	Payload   string
	RunAt     time.Time
	Attempts  int64
	Status    string
	LastError sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

const createDeferredAction = `
INSERT INTO deferred_actions (id, action, payload, run_at, attempts, status, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, 'pending', ?, ?)`

// CreateDeferredActionParams holds the values for CreateDeferredAction.
type CreateDeferredActionParams struct {
	ID        string
	Action    string
	Payload   string
	RunAt     time.Time
	CreatedAt time.Time
}

// CreateDeferredAction inserts a pending action.
func (q *Queries) CreateDeferredAction(ctx context.Context, arg CreateDeferredActionParams) error {
	_, err := q.db.ExecContext(ctx, createDeferredAction,
		arg.ID, arg.Action, arg.Payload, arg.RunAt.UTC(), arg.CreatedAt.UTC(), arg.CreatedAt.UTC())
	return err
}

const listDueDeferredActions = `
SELECT id, action, payload, run_at, attempts, status, last_error, created_at, updated_at
FROM deferred_actions
WHERE status = 'pending' AND run_at <= ?
ORDER BY run_at, created_at
LIMIT ?`

// ListDueDeferredActions returns pending actions whose run time has passed.
func (q *Queries) ListDueDeferredActions(ctx context.Context, now time.Time, limit int64) ([]DeferredAction, error) {
	rows, err := q.db.QueryContext(ctx, listDueDeferredActions, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []DeferredAction
	for rows.Next() {
		var a DeferredAction
		if err := rows.Scan(&a.ID, &a.Action, &a.Payload, &a.RunAt, &a.Attempts,
			&a.Status, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const claimDeferredAction = `
UPDATE deferred_actions SET status = 'running', attempts = attempts + 1, updated_at = ?
WHERE id = ? AND status = 'pending'`

// ClaimDeferredAction marks a pending action as running. It reports false
// when another runner claimed it first.
func (q *Queries) ClaimDeferredAction(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx, claimDeferredAction, now.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const finishDeferredAction = `
UPDATE deferred_actions SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`

// FinishDeferredActionParams holds the values for FinishDeferredAction.
type FinishDeferredActionParams struct {
	ID        string
	Status    string
	LastError sql.NullString
	UpdatedAt time.Time
}

// FinishDeferredAction records the outcome of a run.
func (q *Queries) FinishDeferredAction(ctx context.Context, arg FinishDeferredActionParams) error {
	_, err := q.db.ExecContext(ctx, finishDeferredAction, arg.Status, arg.LastError, arg.UpdatedAt.UTC(), arg.ID)
	return err
}

const releaseStaleDeferredActions = `
UPDATE deferred_actions SET status = 'pending', updated_at = ?
WHERE status = 'running' AND updated_at < ?`

// ReleaseStaleDeferredActions returns actions stuck in running since before
// cutoff to the pending state so they run again.
func (q *Queries) ReleaseStaleDeferredActions(ctx context.Context, now, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, releaseStaleDeferredActions, now.UTC(), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteFinishedDeferredActions = `
DELETE FROM deferred_actions WHERE status IN ('complete', 'failed') AND updated_at < ?`

// DeleteFinishedDeferredActions purges finished actions older than cutoff.
func (q *Queries) DeleteFinishedDeferredActions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteFinishedDeferredActions, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countDeferredActionsByStatus = `SELECT COUNT(*) FROM deferred_actions WHERE status = ?`

// CountDeferredActionsByStatus counts actions in the given status.
func (q *Queries) CountDeferredActionsByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countDeferredActionsByStatus, status).Scan(&n)
	return n, err
}
