// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Required event keys. Every normalized event carries all of them.
const (
	KeyPipe    = "pipe"
	KeyContext = "context"
	KeyAction  = "action"
	KeyMessage = "message"
	KeyMeta    = "meta"
)

// Envelope and actor keys merged into an event before delivery.
const (
	KeyIPAddress = "ip_address"
	KeyDate      = "date"
	KeyLink      = "link"
	KeyInitiator = "initiator"
	KeyUser      = "user"
)

// Fallback is substituted for a missing or empty required string field.
const Fallback = "unknown"

// DateLayout is the UTC timestamp format sent to the collector.
const DateLayout = "2006-01-02 15:04:05"

// Event is the matchable view of a normalized activity record.
// Author and Role are only set when Initiator is InitiatorUser.
type Event struct {
	Pipe      string
	Context   string
	Action    string
	Message   string
	Meta      map[string]any
	Initiator Initiator
	Author    string
	Role      string
	IPAddress string
	Date      string
	Link      string
}

// HasActorUser reports whether the event was triggered by a logged-in user.
func (e Event) HasActorUser() bool {
	return e.Initiator == InitiatorUser
}
