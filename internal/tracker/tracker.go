// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tracker captures errors, panics and error log records as reports
// and ships them to the collector in batches.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/collector"
	"github.com/olegiv/stalkfish-go/internal/logpipe"
)

// LogComponent tags the tracker's own log records so they are never
// reported back to the collector.
const LogComponent = "tracker"

// Settings exposes the runtime settings the tracker reads.
type Settings interface {
	APIKey() string
	ErrorLogsEnabled() bool
}

// Middleware can amend a report before it is sent. Returning nil drops it.
type Middleware func(r *Report) *Report

// Filter decides whether an error is reported.
type Filter func(err error) bool

// Options configures a Tracker.
type Options struct {
	Settings Settings

	// CollectorURL and Timeout build the collector client when Sender is nil.
	CollectorURL string
	Timeout      time.Duration
	UserAgent    string
	Sender       Sender

	// Cache holds the last-sent fingerprint. A memory cache is used when nil.
	Cache cache.Cache

	Batch           bool
	MaxPayloadSize  int
	Runtime         logpipe.Runtime
	ApplicationPath string
	Middleware      []Middleware
	Filter          Filter
	Logger          *slog.Logger
	Now             func() time.Time
}

// Tracker builds reports and hands them to the API client.
type Tracker struct {
	settings   Settings
	api        *API
	runtime    logpipe.Runtime
	appPath    string
	middleware []Middleware
	filter     Filter
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	userContext map[string]any
}

// Register creates a tracker. It fails without settings or when the
// collector client cannot be built, for example without a timeout.
func Register(opts Options) (*Tracker, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("%w: `settings` is a required parameter", collector.ErrMissingParameter)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", LogComponent))

	sender := opts.Sender
	if sender == nil {
		client, err := collector.New(collector.Options{
			BaseURL:   opts.CollectorURL,
			Timeout:   opts.Timeout,
			UserAgent: opts.UserAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("creating collector client: %w", err)
		}
		sender = client
	}

	c := opts.Cache
	if c == nil {
		c = cache.NewSimpleMemoryCache(DuplicateWindow)
	}

	t := &Tracker{
		settings:    opts.Settings,
		runtime:     opts.Runtime,
		appPath:     opts.ApplicationPath,
		middleware:  opts.Middleware,
		filter:      opts.Filter,
		logger:      logger,
		now:         opts.Now,
		userContext: map[string]any{},
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.appPath == "" {
		t.appPath, _ = os.Getwd()
	}

	transport := NewTransport(sender, opts.Settings.APIKey, c, logger)
	t.api = NewAPI(transport, NewTrimmer(opts.MaxPayloadSize), opts.Batch, logger)
	return t, nil
}

// API returns the batch client.
func (t *Tracker) API() *API {
	return t.api
}

// Enabled reports whether error logging is switched on.
func (t *Tracker) Enabled() bool {
	return t.settings.ErrorLogsEnabled()
}

// Group merges properties into a context group added to every report.
func (t *Tracker) Group(name string, properties map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	group, _ := t.userContext[name].(map[string]any)
	t.userContext[name] = mergeDistinct(group, properties)
}

// Context sets one key in the "context" group added to every report.
func (t *Tracker) Context(key string, value any) {
	t.Group("context", map[string]any{key: value})
}

// Report builds and sends a report for err. It returns nil when err is
// nil, filtered out, dropped by middleware or error logging is off.
func (t *Tracker) Report(ctx context.Context, err error) *Report {
	if err == nil || !t.Enabled() {
		return nil
	}
	if t.filter != nil && !t.filter(err) {
		return nil
	}
	return t.send(ctx, NewErrorReport(err, DetectContext(ctx), t.now()))
}

// ReportMessage builds and sends a report for a log message.
func (t *Tracker) ReportMessage(ctx context.Context, message, level string) *Report {
	if !t.Enabled() {
		return nil
	}
	return t.send(ctx, NewMessageReport(message, level, DetectContext(ctx), t.now()))
}

// ReportLog reports a log record. attrs become the "log" context group.
func (t *Tracker) ReportLog(ctx context.Context, message, level string, attrs map[string]any) *Report {
	if !t.Enabled() {
		return nil
	}
	r := NewMessageReport(message, level, DetectContext(ctx), t.now())
	if len(attrs) > 0 {
		r.Group("log", attrs)
	}
	return t.send(ctx, r)
}

// ReportPanic reports a recovered panic value.
func (t *Tracker) ReportPanic(ctx context.Context, value any) *Report {
	if !t.Enabled() {
		return nil
	}
	p := &PanicError{Value: value, Stack: CaptureStacktrace(1)}
	if t.filter != nil && !t.filter(p) {
		return nil
	}
	r := newReport(p.Class(), p.Error(), p.Stack, DetectContext(ctx), t.now())
	return t.send(ctx, r)
}

// ReportPayload sends a report built by the host. A missing tracking_uuid
// or occurred_at is filled in. It returns false when error logging is off.
func (t *Tracker) ReportPayload(ctx context.Context, payload map[string]any) bool {
	if !t.Enabled() {
		return false
	}
	filled := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		filled[k] = v
	}
	if id, _ := filled["tracking_uuid"].(string); id == "" {
		filled["tracking_uuid"] = uuid.NewString()
	}
	if v, ok := filled["occurred_at"]; !ok || v == nil {
		filled["occurred_at"] = t.now().Unix()
	}
	t.api.ReportPayload(ctx, filled)
	return true
}

// HandleError reports err and returns it unchanged.
func (t *Tracker) HandleError(ctx context.Context, err error) error {
	if err != nil {
		t.Report(ctx, err)
	}
	return err
}

// Recover reports a panic in progress, flushes, and panics again. Use it
// directly in a defer statement.
func (t *Tracker) Recover(ctx context.Context) {
	p := recover()
	if p == nil {
		return
	}
	t.ReportPanic(ctx, p)
	t.Flush(ctx)
	panic(p)
}

// Flush sends buffered reports.
func (t *Tracker) Flush(ctx context.Context) {
	t.api.Flush(ctx)
}

func (t *Tracker) send(ctx context.Context, r *Report) *Report {
	r.Runtime = t.runtime
	r.ApplicationPath = t.appPath
	r.User = logpipe.ActorFrom(ctx)

	t.mu.RLock()
	for name, props := range t.userContext {
		if m, ok := props.(map[string]any); ok {
			r.Group(name, m)
		}
	}
	t.mu.RUnlock()

	for _, mw := range t.middleware {
		if r = mw(r); r == nil {
			return nil
		}
	}
	t.api.Report(ctx, r)
	return r
}
