// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logpipe

import (
	"context"

	"github.com/olegiv/stalkfish-go/internal/model"
)

type contextKey string

const (
	actorKey    contextKey = "actor"
	clientIPKey contextKey = "client_ip"
)

// WithActor attaches the account behind the current host request.
func WithActor(ctx context.Context, actor *model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor attached to ctx, or nil.
func ActorFrom(ctx context.Context) *model.Actor {
	a, _ := ctx.Value(actorKey).(*model.Actor)
	return a
}

// WithClientIP attaches the client address of the current host request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom returns the client address attached to ctx, or "".
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
