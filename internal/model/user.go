// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the domain types shared by the event pipeline,
// the error tracker and the settings layer.
package model

// Initiator identifies who caused an event.
type Initiator string

// Initiator values understood by the collector.
const (
	InitiatorUser             Initiator = "user"
	InitiatorPlugin           Initiator = "plugin"
	InitiatorPlugins          Initiator = "plugins"
	InitiatorUnregisteredUser Initiator = "unregistered-user"
	InitiatorSystem           Initiator = "system"
)

// Actor is the account behind an event as reported by the host.
// A zero ID with a special Username maps to a non-user initiator.
type Actor struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Initiator classifies the actor.
func (a *Actor) Initiator() Initiator {
	if a == nil {
		return InitiatorSystem
	}
	if a.ID > 0 {
		return InitiatorUser
	}
	switch a.Username {
	case "Plugin":
		return InitiatorPlugin
	case "Plugins":
		return InitiatorPlugins
	case "Website Visitor", "Unregistered user":
		return InitiatorUnregisteredUser
	default:
		return InitiatorSystem
	}
}

// Meta returns the actor fields merged into an event body.
func (a *Actor) Meta() map[string]any {
	initiator := a.Initiator()
	meta := map[string]any{KeyInitiator: string(initiator)}
	if initiator != InitiatorUser {
		return meta
	}
	meta[KeyUser] = map[string]any{
		"id":         a.ID,
		"username":   a.Username,
		"role":       a.Role,
		"avatar_url": a.AvatarURL,
	}
	return meta
}
