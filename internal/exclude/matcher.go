// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package exclude

import (
	"context"
	"log/slog"
	"sync"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// Matcher holds the compiled rule set. Reload swaps it in one step so
// concurrent lookups see either the old or the new rules.
type Matcher struct {
	resolver AuthorResolver
	logger   *slog.Logger

	// reloadMu serializes recompilation.
	reloadMu sync.Mutex

	mu      sync.RWMutex
	rules   []model.ExclusionRule
	preds   []Predicate
	authors map[int64]string
}

// NewMatcher creates an empty matcher.
func NewMatcher(resolver AuthorResolver, logger *slog.Logger) *Matcher {
	return &Matcher{resolver: resolver, logger: logger}
}

// Reload compiles rules and replaces the current set.
func (m *Matcher) Reload(ctx context.Context, rules []model.ExclusionRule) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	m.load(ctx, rules)
	if m.logger != nil {
		m.logger.Debug("exclusion rules loaded", "count", len(rules))
	}
}

func (m *Matcher) load(ctx context.Context, rules []model.ExclusionRule) {
	preds, authors := compile(ctx, rules, m.resolver, m.logger)
	m.mu.Lock()
	m.rules = rules
	m.preds = preds
	m.authors = authors
	m.mu.Unlock()
}

// UserChanged recompiles the rules when a rule names user id and the
// username it resolved to differs from username. It is called by the user
// directory whenever an account is stored.
func (m *Matcher) UserChanged(ctx context.Context, id int64, username string) {
	if !m.stale(id, username) {
		return
	}
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	if !m.stale(id, username) {
		return
	}
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()
	m.load(ctx, rules)
	if m.logger != nil {
		m.logger.Debug("exclusion rules re-resolved", "user_id", id)
	}
}

func (m *Matcher) stale(id int64, username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.authors[id]
	return ok && name != username
}

// Len returns the number of loaded rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.preds)
}

// IsExcluded checks the event against the loaded rules.
func (m *Matcher) IsExcluded(event model.Event) bool {
	m.mu.RLock()
	preds := m.preds
	m.mu.RUnlock()
	return IsExcluded(event, preds)
}
