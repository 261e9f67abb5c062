// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

// Option is one persisted setting; Value holds its JSON encoding.
type Option struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}

const getOption = `SELECT name, value, updated_at FROM options WHERE name = ?`

// GetOption returns the option named name or sql.ErrNoRows.
func (q *Queries) GetOption(ctx context.Context, name string) (Option, error) {
	var o Option
	err := q.db.QueryRowContext(ctx, getOption, name).Scan(&o.Name, &o.Value, &o.UpdatedAt)
	return o, err
}

const listOptions = `SELECT name, value, updated_at FROM options ORDER BY name`

// ListOptions returns every stored option.
func (q *Queries) ListOptions(ctx context.Context) ([]Option, error) {
	rows, err := q.db.QueryContext(ctx, listOptions)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.Name, &o.Value, &o.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const upsertOption = `
INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// UpsertOptionParams holds the values for UpsertOption.
type UpsertOptionParams struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}

// UpsertOption creates or replaces an option.
func (q *Queries) UpsertOption(ctx context.Context, arg UpsertOptionParams) error {
	_, err := q.db.ExecContext(ctx, upsertOption, arg.Name, arg.Value, arg.UpdatedAt)
	return err
}

const deleteOption = `DELETE FROM options WHERE name = ?`

// DeleteOption removes an option.
func (q *Queries) DeleteOption(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, deleteOption, name)
	return err
}
