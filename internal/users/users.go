// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package users keeps the host accounts seen in activity events so that
// exclusion rules naming a numeric user id can be matched by username.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/store"
)

// ErrUnknownUser is returned when no account with the id has been seen.
var ErrUnknownUser = errors.New("unknown user")

const cacheKeyPrefix = "user:"

// ChangeFunc is called after an account has been stored.
type ChangeFunc func(ctx context.Context, id int64, username string)

// Directory records actors and resolves user ids.
type Directory struct {
	queries *store.Queries
	names   *cache.TypedCache[store.KnownUser]
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	listeners []ChangeFunc
}

// New creates a directory backed by db. A nil cache disables lookup caching.
func New(db *sql.DB, c cache.Cache, logger *slog.Logger) *Directory {
	d := &Directory{
		queries: store.New(db),
		logger:  logger,
		now:     time.Now,
	}
	if c != nil {
		d.names = cache.NewTypedCache[store.KnownUser](c, 10*time.Minute)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Remember stores a user actor. Failures are logged, not returned, so an
// event is never lost because of the directory.
func (d *Directory) Remember(ctx context.Context, actor *model.Actor) {
	if actor == nil || actor.ID <= 0 || actor.Username == "" {
		return
	}
	u := store.KnownUser{
		ID:        actor.ID,
		Username:  actor.Username,
		Role:      actor.Role,
		UpdatedAt: d.now(),
	}
	if err := d.queries.UpsertKnownUser(ctx, u); err != nil {
		d.logger.Warn("failed to remember user", "user_id", actor.ID, "error", err)
		return
	}
	if d.names != nil {
		_ = d.names.Set(ctx, cacheKey(actor.ID), &u)
	}

	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, u.ID, u.Username)
	}
}

// OnRemember registers fn to run after every stored account.
func (d *Directory) OnRemember(fn ChangeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Lookup returns the stored account with id.
func (d *Directory) Lookup(ctx context.Context, id int64) (store.KnownUser, error) {
	load := func() (*store.KnownUser, error) {
		u, err := d.queries.GetKnownUser(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownUser
		}
		if err != nil {
			return nil, fmt.Errorf("loading user %d: %w", id, err)
		}
		return &u, nil
	}

	if d.names == nil {
		u, err := load()
		if err != nil {
			return store.KnownUser{}, err
		}
		return *u, nil
	}
	u, err := d.names.GetOrSet(ctx, cacheKey(id), load)
	if err != nil {
		return store.KnownUser{}, err
	}
	return *u, nil
}

// Username implements exclude.AuthorResolver.
func (d *Directory) Username(ctx context.Context, id int64) (string, error) {
	u, err := d.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}
