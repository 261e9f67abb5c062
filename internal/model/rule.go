// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "strconv"

// ExclusionRule suppresses events whose fields match every non-empty predicate.
// AuthorOrRole holds either a numeric user id or a role slug.
type ExclusionRule struct {
	Pipe         string `json:"pipe,omitempty"`
	Context      string `json:"context,omitempty"`
	Action       string `json:"action,omitempty"`
	AuthorOrRole string `json:"author_or_role,omitempty"`
}

// IsEmpty reports whether the rule has no predicate fields.
func (r ExclusionRule) IsEmpty() bool {
	return r.Pipe == "" && r.Context == "" && r.Action == "" && r.AuthorOrRole == ""
}

// AuthorID returns the numeric user id held in AuthorOrRole, if any.
func (r ExclusionRule) AuthorID() (int64, bool) {
	if r.AuthorOrRole == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(r.AuthorOrRole, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
