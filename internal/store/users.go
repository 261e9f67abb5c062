// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

// KnownUser is a host account seen in an event, kept so numeric exclusion
// rules can be resolved to usernames.
type KnownUser struct {
	ID        int64
	Username  string
	Role      string
	UpdatedAt time.Time
}

const upsertKnownUser = `
INSERT INTO known_users (id, username, role, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET username = excluded.username, role = excluded.role, updated_at = excluded.updated_at`

// UpsertKnownUser records or refreshes a user.
func (q *Queries) UpsertKnownUser(ctx context.Context, u KnownUser) error {
	_, err := q.db.ExecContext(ctx, upsertKnownUser, u.ID, u.Username, u.Role, u.UpdatedAt.UTC())
	return err
}

const getKnownUser = `SELECT id, username, role, updated_at FROM known_users WHERE id = ?`

// GetKnownUser returns the user with id or sql.ErrNoRows.
func (q *Queries) GetKnownUser(ctx context.Context, id int64) (KnownUser, error) {
	var u KnownUser
	err := q.db.QueryRowContext(ctx, getKnownUser, id).Scan(&u.ID, &u.Username, &u.Role, &u.UpdatedAt)
	return u, err
}
