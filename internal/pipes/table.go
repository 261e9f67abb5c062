// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package pipes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// ErrUnknownHook is returned when no handler is registered for a hook.
var ErrUnknownHook = errors.New("unknown hook")

// route binds a host hook to a pipe. action is the default action of the
// resulting event; the host may override it. Hooks with capture set only
// snapshot state on the host side and produce no event.
type route struct {
	hook    string
	action  string
	context string
	capture bool
}

var routes = map[string][]route{
	Users: {
		{hook: "user_register", action: "created", context: "users"},
		{hook: "update_user_meta", capture: true},
		{hook: "updated_user_meta", action: "updated", context: "profiles"},
		{hook: "profile_update", action: "updated", context: "profiles"},
		{hook: "retrieve_password", action: "forgot-password", context: "sessions"},
		{hook: "set_auth_cookie", action: "login", context: "sessions"},
		{hook: "clear_auth_cookie", capture: true},
		{hook: "wp_logout", action: "logout", context: "sessions"},
		{hook: "delete_user", capture: true},
		{hook: "deleted_user", action: "deleted", context: "users"},
		{hook: "set_user_role", action: "updated", context: "profiles"},
	},
	Posts: {
		{hook: "pre_post_update", capture: true},
		{hook: "save_post", action: "modified"},
		{hook: "set_object_terms", action: "modified"},
		{hook: "delete_post", action: "deleted"},
		{hook: "wp_trash_post", action: "deleted"},
		{hook: "untrash_post", action: "restored"},
		{hook: "future_to_publish", action: "published"},
		{hook: "add_post_metadata", action: "modified"},
		{hook: "updated_post_meta", action: "modified"},
		{hook: "delete_post_metadata", action: "modified"},
	},
	Installer: {
		{hook: "upgrader_process_complete", action: "updated"},
		{hook: "activate_plugin", action: "activated", context: "plugins"},
		{hook: "deactivate_plugin", action: "deactivated", context: "plugins"},
		{hook: "switch_theme", action: "activated", context: "themes"},
		{hook: "delete_site_transient_update_themes", action: "deleted", context: "themes"},
		{hook: "_core_updated_successfully", action: "updated", context: "core"},
	},
	Settings: {
		{hook: "allowed_options", capture: true},
		{hook: "update_option", action: "updated", context: "settings"},
		{hook: "update_site_option", action: "updated", context: "settings"},
		{hook: "update_option_permalink_structure", action: "updated", context: "settings"},
		{hook: "update_option_category_base", action: "updated", context: "settings"},
		{hook: "update_option_tag_base", action: "updated", context: "settings"},
	},
	Editor: {
		{hook: "admin_init", action: "modified"},
	},
	Media: {
		{hook: "add_attachment", action: "uploaded"},
		{hook: "edit_attachment", action: "updated"},
		{hook: "delete_attachment", action: "deleted"},
		{hook: "wp_save_image_editor_file", action: "edited", context: "image"},
		{hook: "wp_save_image_file", action: "edited", context: "image"},
	},
	Menus: {
		{hook: "wp_create_nav_menu", action: "created"},
		{hook: "wp_update_nav_menu", action: "updated"},
		{hook: "delete_nav_menu", action: "deleted"},
	},
	Widgets: {
		{hook: "update_option_sidebars_widgets", action: "updated"},
		{hook: "updated_option", action: "updated"},
	},
	Taxonomies: {
		{hook: "created_term", action: "created"},
		{hook: "delete_term", action: "deleted"},
		{hook: "edit_term", capture: true},
		{hook: "edited_term", action: "updated"},
	},
	Comments: {
		{hook: "wp_insert_comment", action: "created", context: "comments"},
		{hook: "edit_comment", action: "edited", context: "comments"},
		{hook: "transition_comment_status", action: "updated", context: "comments"},
		{hook: "delete_comment", action: "deleted", context: "comments"},
		{hook: "trash_comment", action: "trashed", context: "comments"},
		{hook: "untrash_comment", action: "untrashed", context: "comments"},
		{hook: "spam_comment", action: "spammed", context: "comments"},
		{hook: "unspam_comment", action: "unspammed", context: "comments"},
		{hook: "comment_duplicate_trigger", action: "duplicate", context: "comments"},
		{hook: "comment_flood_trigger", action: "flood", context: "comments"},
	},
}

// NewDefaultRegistry returns a registry with the built-in hook table.
func NewDefaultRegistry(logger *slog.Logger) *HookRegistry {
	reg := NewHookRegistry(logger)
	for _, pipe := range Names {
		for _, r := range routes[pipe] {
			reg.Register(r.hook, HookHandler{
				Name: pipe + "." + r.hook,
				Pipe: pipe,
				Fn:   forward(r),
			})
		}
	}
	return reg
}

// forward copies the hook arguments into the event body, filling the
// route's default context and action when the host left them out.
func forward(r route) HookFunc {
	return func(_ context.Context, args map[string]any) (map[string]any, bool) {
		if r.capture {
			return nil, false
		}
		body := make(map[string]any, len(args)+2)
		for k, v := range args {
			body[k] = v
		}
		if s, _ := body[model.KeyAction].(string); s == "" && r.action != "" {
			body[model.KeyAction] = r.action
		}
		if s, _ := body[model.KeyContext].(string); s == "" && r.context != "" {
			body[model.KeyContext] = r.context
		}
		return body, true
	}
}
