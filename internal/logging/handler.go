// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that forwards error records to
// the error tracker.
package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/olegiv/stalkfish-go/internal/tracker"
)

// componentKey is the attribute that names the logging component.
const componentKey = "component"

// Reporter receives forwarded log records.
type Reporter interface {
	ReportLog(ctx context.Context, message, level string, attrs map[string]any) *tracker.Report
}

// TrackerHandler is a slog.Handler that wraps another handler and also
// reports ERROR level records to the tracker. Records tagged with the
// tracker's own component are never forwarded.
type TrackerHandler struct {
	inner    slog.Handler
	reporter *atomic.Pointer[Reporter] // shared by derived handlers
	level    slog.Level                // Minimum level to forward (default: ERROR)
	attrs    []slog.Attr
	groups   []string
	skip     bool
}

// NewTrackerHandler creates a TrackerHandler that wraps the given handler.
// A nil reporter forwards nothing until SetReporter is called.
func NewTrackerHandler(inner slog.Handler, reporter Reporter) *TrackerHandler {
	h := &TrackerHandler{
		inner:    inner,
		reporter: &atomic.Pointer[Reporter]{},
		level:    slog.LevelError,
	}
	h.SetReporter(reporter)
	return h
}

// NewTrackerHandlerWithLevel creates a TrackerHandler with a custom minimum level.
func NewTrackerHandlerWithLevel(inner slog.Handler, reporter Reporter, level slog.Level) *TrackerHandler {
	h := NewTrackerHandler(inner, reporter)
	h.level = level
	return h
}

// SetReporter sets the reporter for this handler and every handler derived
// from it. The tracker needs a logger, so it is usually attached after the
// default logger is installed.
func (h *TrackerHandler) SetReporter(r Reporter) {
	if r == nil {
		h.reporter.Store(nil)
		return
	}
	h.reporter.Store(&r)
}

// Enabled implements slog.Handler.
func (h *TrackerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *TrackerHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	rp := h.reporter.Load()
	if rp == nil || h.skip || r.Level < h.level || fromTracker(r) {
		return nil
	}

	// A cancelled request context must not stop the report.
	(*rp).ReportLog(context.WithoutCancel(ctx), r.Message, levelName(r.Level), h.collectAttrs(r))
	return nil
}

// WithAttrs implements slog.Handler.
func (h *TrackerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		if len(h.groups) == 0 && isTrackerComponent(a) {
			clone.skip = true
		}
		clone.attrs = append(clone.attrs, prefixed(h.groups, a))
	}
	return clone
}

// WithGroup implements slog.Handler.
func (h *TrackerHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.inner = h.inner.WithGroup(name)
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *TrackerHandler) clone() *TrackerHandler {
	return &TrackerHandler{
		inner:    h.inner,
		reporter: h.reporter,
		level:    h.level,
		attrs:    append([]slog.Attr(nil), h.attrs...),
		groups:   append([]string(nil), h.groups...),
		skip:     h.skip,
	}
}

// collectAttrs flattens logger and record attributes into one map keyed
// by dotted group path.
func (h *TrackerHandler) collectAttrs(r slog.Record) map[string]any {
	out := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(out, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		addAttr(out, prefix, a)
		return true
	})
	return out
}

func addAttr(out map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(out, key, ga)
		}
		return
	}
	switch a.Value.Kind() {
	case slog.KindString:
		out[key] = a.Value.String()
	case slog.KindInt64:
		out[key] = a.Value.Int64()
	case slog.KindUint64:
		out[key] = a.Value.Uint64()
	case slog.KindFloat64:
		out[key] = a.Value.Float64()
	case slog.KindBool:
		out[key] = a.Value.Bool()
	default:
		// Errors, durations, times and arbitrary values.
		out[key] = a.Value.String()
	}
}

func prefixed(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		return a
	}
	a.Key = strings.Join(groups, ".") + "." + a.Key
	return a
}

func fromTracker(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if isTrackerComponent(a) {
			found = true
			return false
		}
		return true
	})
	return found
}

func isTrackerComponent(a slog.Attr) bool {
	return a.Key == componentKey && a.Value.Resolve().String() == tracker.LogComponent
}

// levelName maps a slog level to the report class used for log messages.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError+4:
		return "critical"
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
