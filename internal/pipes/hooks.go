// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package pipes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// HookFunc turns the arguments of a host hook into an event body. It
// returns false when the hook produces no event.
type HookFunc func(ctx context.Context, args map[string]any) (map[string]any, bool)

// HookHandler wraps a HookFunc with metadata.
type HookHandler struct {
	Name     string   // Name of the handler for debugging
	Pipe     string   // Pipe that receives the event
	Priority int      // Lower priority runs first (default: 0)
	Fn       HookFunc // The actual handler function
}

// Emission is one event produced by a hook.
type Emission struct {
	Pipe string
	Body map[string]any
}

// HookRegistry maps host hook names to handlers.
type HookRegistry struct {
	hooks  map[string][]HookHandler
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry(logger *slog.Logger) *HookRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookRegistry{
		hooks:  make(map[string][]HookHandler),
		logger: logger,
	}
}

// Register adds a handler for the given hook name.
func (h *HookRegistry) Register(hookName string, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	handlers := append(h.hooks[hookName], handler)
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].Priority < handlers[j].Priority
	})
	h.hooks[hookName] = handlers

	h.logger.Debug("hook registered",
		"hook", hookName,
		"handler", handler.Name,
		"pipe", handler.Pipe,
		"priority", handler.Priority,
	)
}

// Dispatch runs every handler of hookName in priority order and collects
// the events they produce. A panicking handler is skipped.
func (h *HookRegistry) Dispatch(ctx context.Context, hookName string, args map[string]any) ([]Emission, error) {
	h.mu.RLock()
	handlers, exists := h.hooks[hookName]
	h.mu.RUnlock()

	if !exists || len(handlers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHook, hookName)
	}

	var out []Emission
	for _, handler := range handlers {
		body, ok := h.call(ctx, hookName, handler, args)
		if !ok {
			continue
		}
		out = append(out, Emission{Pipe: handler.Pipe, Body: body})
	}
	return out, nil
}

func (h *HookRegistry) call(ctx context.Context, hookName string, handler HookHandler, args map[string]any) (body map[string]any, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("hook handler panicked",
				"hook", hookName,
				"handler", handler.Name,
				"pipe", handler.Pipe,
				"error", fmt.Sprint(p),
			)
			body, ok = nil, false
		}
	}()
	return handler.Fn(ctx, args)
}

// HasHandlers returns true if there are handlers registered for the hook.
func (h *HookRegistry) HasHandlers(hookName string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks[hookName]) > 0
}

// HandlerCount returns the number of handlers registered for a hook.
func (h *HookRegistry) HandlerCount(hookName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks[hookName])
}

// ListHooks returns all registered hook names, sorted.
func (h *HookRegistry) ListHooks() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.hooks))
	for name, handlers := range h.hooks {
		if len(handlers) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Unregister removes the handlers of a pipe from a hook.
func (h *HookRegistry) Unregister(hookName, pipe string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := make([]HookHandler, 0, len(h.hooks[hookName]))
	for _, handler := range h.hooks[hookName] {
		if handler.Pipe != pipe {
			kept = append(kept, handler)
		}
	}
	h.hooks[hookName] = kept

	h.logger.Debug("hooks unregistered", "hook", hookName, "pipe", pipe, "remaining", len(kept))
}
