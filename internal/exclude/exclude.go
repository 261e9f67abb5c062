// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package exclude decides whether an activity event is suppressed by the
// user-configured exclusion rules.
package exclude

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// Predicate field names.
const (
	FieldPipe    = "pipe"
	FieldContext = "context"
	FieldAction  = "action"
	FieldAuthor  = "author"
	FieldRole    = "role"
)

// AuthorResolver maps a numeric user id from a rule to the username that
// events carry.
type AuthorResolver interface {
	Username(ctx context.Context, id int64) (string, error)
}

type condition struct {
	field string
	value string
}

// Predicate is a compiled exclusion rule: the rule's non-empty fields with
// numeric authors already resolved.
type Predicate struct {
	conds []condition
}

// Needed returns the number of fields the predicate checks.
func (p Predicate) Needed() int {
	return len(p.conds)
}

// Compile builds predicates from rules. Numeric author ids are resolved
// here; an id that cannot be resolved keeps its decimal form and so never
// equals a username. A nil resolver skips resolution.
func Compile(ctx context.Context, rules []model.ExclusionRule, resolver AuthorResolver, logger *slog.Logger) []Predicate {
	preds, _ := compile(ctx, rules, resolver, logger)
	return preds
}

// compile also returns what each referenced author id resolved to, with ""
// for ids that are not known yet.
func compile(ctx context.Context, rules []model.ExclusionRule, resolver AuthorResolver, logger *slog.Logger) ([]Predicate, map[int64]string) {
	preds := make([]Predicate, 0, len(rules))
	authors := make(map[int64]string)
	for _, rule := range rules {
		var p Predicate
		if rule.Pipe != "" {
			p.conds = append(p.conds, condition{FieldPipe, rule.Pipe})
		}
		if rule.Context != "" {
			p.conds = append(p.conds, condition{FieldContext, rule.Context})
		}
		if rule.Action != "" {
			p.conds = append(p.conds, condition{FieldAction, rule.Action})
		}
		if id, ok := rule.AuthorID(); ok {
			name, resolved := resolveAuthor(ctx, resolver, id, logger)
			if resolved {
				authors[id] = name
			} else {
				authors[id] = ""
			}
			p.conds = append(p.conds, condition{FieldAuthor, name})
		} else if rule.AuthorOrRole != "" {
			p.conds = append(p.conds, condition{FieldRole, rule.AuthorOrRole})
		}
		preds = append(preds, p)
	}
	return preds, authors
}

func resolveAuthor(ctx context.Context, resolver AuthorResolver, id int64, logger *slog.Logger) (string, bool) {
	fallback := strconv.FormatInt(id, 10)
	if resolver == nil {
		return fallback, false
	}
	name, err := resolver.Username(ctx, id)
	if err != nil || name == "" {
		if logger != nil {
			logger.Debug("exclusion rule author not resolved", "user_id", id, "error", err)
		}
		return fallback, false
	}
	return name, true
}

// Fields returns the matchable fields of an event. Author and role are only
// exposed for events triggered by a logged-in user.
func Fields(event model.Event) map[string]string {
	fields := make(map[string]string, 5)
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set(FieldPipe, event.Pipe)
	set(FieldContext, event.Context)
	set(FieldAction, event.Action)
	if event.HasActorUser() {
		set(FieldAuthor, event.Author)
		set(FieldRole, event.Role)
	}
	return fields
}

// Matches reports whether every condition of p equals the corresponding
// event field. A predicate with no conditions matches every event.
func (p Predicate) Matches(fields map[string]string) bool {
	found := 0
	for _, c := range p.conds {
		if v, ok := fields[c.field]; ok && v == c.value {
			found++
		}
	}
	return found == p.Needed()
}

// IsExcluded reports whether any predicate matches the event. Predicates are
// checked in order and the first match wins.
func IsExcluded(event model.Event, preds []Predicate) bool {
	if len(preds) == 0 {
		return false
	}
	fields := Fields(event)
	for _, p := range preds {
		if p.Matches(fields) {
			return true
		}
	}
	return false
}
