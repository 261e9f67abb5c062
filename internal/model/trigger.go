// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Triggers lists the contexts and actions a pipe can emit.
type Triggers struct {
	Contexts []string `json:"contexts"`
	Actions  []string `json:"actions"`
}

// RequestType selects immediate or deferred event delivery.
type RequestType string

// Request types stored in the settings blob.
const (
	RequestImmediate RequestType = "immediate"
	RequestAsync     RequestType = "async"
)
