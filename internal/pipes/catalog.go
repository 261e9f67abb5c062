// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipes describes the event sources of the host: the catalog of
// contexts and actions each pipe can emit, and the table that routes host
// hooks to pipes.
package pipes

import (
	"slices"
	"sync"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// Pipe names.
const (
	Users      = "users"
	Posts      = "posts"
	Installer  = "installer"
	Settings   = "settings"
	Editor     = "editor"
	Media      = "media"
	Menus      = "menus"
	Widgets    = "widgets"
	Taxonomies = "taxonomies"
	Comments   = "comments"
)

// Names lists the registered pipes in registration order.
var Names = []string{Users, Posts, Installer, Settings, Editor, Media, Menus, Widgets, Taxonomies, Comments}

func defaultTriggers() map[string]model.Triggers {
	return map[string]model.Triggers{
		Users: {
			Contexts: []string{"users", "profiles", "sessions"},
			Actions:  []string{"created", "updated", "forgot-password", "login", "logout", "deleted"},
		},
		Posts: {
			Actions: []string{"created", "published", "modified", "deleted", "restored"},
		},
		Installer: {
			Contexts: []string{"themes", "plugins", "core"},
			Actions:  []string{"installed", "updated", "deleted", "activated", "deactivated", "failed", "downgraded"},
		},
		Settings: {
			Contexts: []string{"settings", "theme_mods", "sf_options"},
			Actions:  []string{"updated"},
		},
		Editor: {
			Contexts: []string{"themes", "plugins"},
			Actions:  []string{"modified"},
		},
		Media: {
			Contexts: []string{"document", "image", "audio", "video", "spreadsheet", "interactive", "text", "archive", "code"},
			Actions:  []string{"attached", "uploaded", "added", "edited", "updated", "removed", "deleted"},
		},
		Menus: {
			Actions: []string{"created", "updated", "deleted", "assigned", "unassigned"},
		},
		Widgets: {
			Contexts: []string{"wp_inactive_widgets", "orphaned_widgets"},
			Actions:  []string{"added", "sorted", "moved", "updated", "removed", "deactivated", "reactivated"},
		},
		Taxonomies: {
			Actions: []string{"created", "updated", "deleted"},
		},
		Comments: {
			Contexts: []string{"comments"},
			Actions:  []string{"flood", "replied", "created", "edited", "spammed", "deleted", "trashed", "untrashed", "unspammed", "duplicate"},
		},
	}
}

// Catalog holds the triggers of every pipe. Contexts that depend on host
// content, such as post types or menus, are learned as events arrive.
type Catalog struct {
	mu       sync.RWMutex
	triggers map[string]model.Triggers
}

// NewCatalog returns the catalog of the built-in pipes.
func NewCatalog() *Catalog {
	return &Catalog{triggers: defaultTriggers()}
}

// Has reports whether pipe is known.
func (c *Catalog) Has(pipe string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.triggers[pipe]
	return ok
}

// Triggers returns a copy of every pipe's triggers.
func (c *Catalog) Triggers() map[string]model.Triggers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.Triggers, len(c.triggers))
	for name, t := range c.triggers {
		out[name] = model.Triggers{
			Contexts: slices.Clone(t.Contexts),
			Actions:  slices.Clone(t.Actions),
		}
	}
	return out
}

// AddContexts records contexts for a known pipe. Duplicates and empty
// names are ignored; it reports whether anything was added.
func (c *Catalog) AddContexts(pipe string, contexts ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.triggers[pipe]
	if !ok {
		return false
	}
	added := false
	for _, ctx := range contexts {
		if ctx == "" || ctx == model.Fallback || slices.Contains(t.Contexts, ctx) {
			continue
		}
		t.Contexts = append(t.Contexts, ctx)
		added = true
	}
	if added {
		c.triggers[pipe] = t
	}
	return added
}
