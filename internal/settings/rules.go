// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// helperRow is the placeholder row the settings form submits alongside the
// real rows.
const helperRow = "helper"

// ErrEmptyRule is returned for an exclusion rule with no predicate fields.
// Such a rule would suppress every event.
var ErrEmptyRule = errors.New("exclusion rule must set at least one of pipe, context, action or author_or_role")

// ColumnarRules is the settings-form encoding of exclusion rules: parallel
// maps keyed by row id.
type ColumnarRules struct {
	Rows         map[string]string `json:"rows"`
	Pipe         map[string]string `json:"pipe"`
	Context      map[string]string `json:"context"`
	Action       map[string]string `json:"action"`
	AuthorOrRole map[string]string `json:"author_or_role"`
}

// Rules converts the columnar form into rule records. The helper row and
// rows without any predicate field are dropped. Rows are ordered by numeric
// id.
func (c ColumnarRules) Rules() []model.ExclusionRule {
	ids := make([]string, 0, len(c.Rows))
	for id := range c.Rows {
		if id == helperRow {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return rowLess(ids[i], ids[j]) })

	rules := make([]model.ExclusionRule, 0, len(ids))
	for _, id := range ids {
		rule := model.ExclusionRule{
			Pipe:         strings.TrimSpace(c.Pipe[id]),
			Context:      strings.TrimSpace(c.Context[id]),
			Action:       strings.TrimSpace(c.Action[id]),
			AuthorOrRole: strings.TrimSpace(c.AuthorOrRole[id]),
		}
		if rule.IsEmpty() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func rowLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

// Columns converts rule records back into the columnar form, numbering
// rows from zero.
func Columns(rules []model.ExclusionRule) ColumnarRules {
	c := ColumnarRules{
		Rows:         make(map[string]string, len(rules)),
		Pipe:         make(map[string]string),
		Context:      make(map[string]string),
		Action:       make(map[string]string),
		AuthorOrRole: make(map[string]string),
	}
	for i, r := range rules {
		id := strconv.Itoa(i)
		c.Rows[id] = ""
		setIf(c.Pipe, id, r.Pipe)
		setIf(c.Context, id, r.Context)
		setIf(c.Action, id, r.Action)
		setIf(c.AuthorOrRole, id, r.AuthorOrRole)
	}
	return c
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// ValidateRule rejects rules that would match every event.
func ValidateRule(r model.ExclusionRule) error {
	if r.IsEmpty() {
		return ErrEmptyRule
	}
	return nil
}

// SetExclusionRules validates and stores rules.
func (o *Options) SetExclusionRules(ctx context.Context, rules []model.ExclusionRule) error {
	for i, r := range rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if rules == nil {
		rules = []model.ExclusionRule{}
	}
	return o.Set(ctx, KeyExcludeRules, rules)
}
