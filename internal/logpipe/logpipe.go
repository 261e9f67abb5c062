// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logpipe turns host activity into collector events: it merges
// request metadata, normalizes, applies exclusion rules and delivers now
// or through the deferred queue, retrying transient failures.
package logpipe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	json "github.com/goccy/go-json"

	"github.com/olegiv/stalkfish-go/internal/deferred"
	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/normalize"
)

// ActionEnqueueRequest is the deferred action that delivers one event.
const ActionEnqueueRequest = "stalkfish_enqueue_request"

// EventsPath is the collector path for activity events.
const EventsPath = "events"

// DefaultRetryDelay is the wait before a failed delivery is retried.
const DefaultRetryDelay = 60 * time.Second

// transientStatus lists the responses that schedule a retry.
var transientStatus = map[int]bool{426: true, 500: true}

// Settings exposes the runtime settings the pipeline reads.
type Settings interface {
	APIKey() string
	RequestType() model.RequestType
	ActivityLogsEnabled() bool
}

// Excluder decides whether an event is suppressed.
type Excluder interface {
	IsExcluded(event model.Event) bool
}

// Sender posts form data to the collector and returns the status code.
type Sender interface {
	PostForm(ctx context.Context, path, apiKey string, data map[string]any) (int, error)
}

// UserRecorder remembers user actors so numeric rules can be resolved.
type UserRecorder interface {
	Remember(ctx context.Context, actor *model.Actor)
}

// Runtime describes the monitored installation.
type Runtime struct {
	HostVersion   string
	PluginVersion string
	Environment   string
}

// Meta returns the runtime fields merged into every event.
func (r Runtime) Meta() map[string]any {
	return map[string]any{
		"host_version":     r.HostVersion,
		"language":         "go",
		"language_version": runtime.Version(),
		"plugin_version":   r.PluginVersion,
		"environment":      r.Environment,
	}
}

// Options configures a Logpipe.
type Options struct {
	Settings   Settings
	Excluder   Excluder
	Sender     Sender
	Queue      deferred.Queue
	Users      UserRecorder
	Runtime    Runtime
	RetryDelay time.Duration
	RetryLimit int // 0 retries forever
	Logger     *slog.Logger
	Now        func() time.Time
}

// Logpipe is the event delivery pipeline.
type Logpipe struct {
	settings   Settings
	excluder   Excluder
	sender     Sender
	queue      deferred.Queue
	users      UserRecorder
	runtime    Runtime
	retryDelay time.Duration
	retryLimit int
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline.
func New(opts Options) *Logpipe {
	l := &Logpipe{
		settings:   opts.Settings,
		excluder:   opts.Excluder,
		sender:     opts.Sender,
		queue:      opts.Queue,
		users:      opts.Users,
		runtime:    opts.Runtime,
		retryDelay: opts.RetryDelay,
		retryLimit: opts.RetryLimit,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if l.retryDelay <= 0 {
		l.retryDelay = DefaultRetryDelay
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Result describes what Pipe did with an event.
type Result struct {
	Disabled   bool // activity logging is switched off
	Excluded   bool // an exclusion rule matched
	Deferred   bool // queued for asynchronous delivery
	Retrying   bool // immediate delivery failed and a retry is scheduled
	StatusCode int  // collector status for immediate delivery
	Err        error
}

// OK reports whether the event was delivered or queued.
func (r Result) OK() bool {
	if r.Disabled || r.Excluded || r.Err != nil {
		return false
	}
	if r.Deferred {
		return true
	}
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Pipe records one event from pipe. It never fails the caller: problems
// are logged and reported in the Result.
func (l *Logpipe) Pipe(ctx context.Context, pipe string, body map[string]any, immediate bool) Result {
	if !l.settings.ActivityLogsEnabled() {
		return Result{Disabled: true}
	}

	actor := ActorFrom(ctx)
	data := l.Build(ctx, pipe, body, actor)
	event := normalize.ToEvent(data)

	if actor.Initiator() == model.InitiatorUser && l.users != nil {
		l.users.Remember(ctx, actor)
	}

	if l.excluder != nil && l.excluder.IsExcluded(event) {
		l.logger.Debug("event excluded", "pipe", event.Pipe, "context", event.Context, "action", event.Action)
		return Result{Excluded: true}
	}

	if immediate || l.settings.RequestType() == model.RequestImmediate {
		status, retrying, err := l.deliver(ctx, envelope{Data: data})
		return Result{StatusCode: status, Retrying: retrying, Err: err}
	}

	if err := l.queue.Enqueue(ctx, ActionEnqueueRequest, envelope{Data: data}); err != nil {
		l.logger.Error("failed to queue event", "pipe", event.Pipe, "error", err)
		return Result{Err: err}
	}
	return Result{Deferred: true}
}

// Build merges the envelope, body, actor and runtime metadata into one
// normalized event map. Later sources win on key collisions.
func (l *Logpipe) Build(ctx context.Context, pipe string, body map[string]any, actor *model.Actor) map[string]any {
	data := map[string]any{
		model.KeyPipe:      pipe,
		model.KeyIPAddress: ClientIPFrom(ctx),
		model.KeyDate:      l.now().UTC().Format(model.DateLayout),
	}
	for k, v := range body {
		data[k] = v
	}
	for k, v := range actor.Meta() {
		data[k] = v
	}
	for k, v := range l.runtime.Meta() {
		data[k] = v
	}
	return normalize.Normalize(data)
}

// Deliver posts one event to the collector. When no response arrives or
// the status is transient the same payload is scheduled again after the
// retry delay. It returns the collector status, or 0 with the transport
// error when there was no response.
func (l *Logpipe) Deliver(ctx context.Context, data map[string]any) (int, error) {
	status, _, err := l.deliver(ctx, envelope{Data: data})
	return status, err
}

// deliver also reports whether a retry was scheduled.
func (l *Logpipe) deliver(ctx context.Context, env envelope) (int, bool, error) {
	status, err := l.sender.PostForm(ctx, EventsPath, l.settings.APIKey(), env.Data)
	if err == nil && !transientStatus[status] {
		if status < 200 || status >= 300 {
			l.logger.Warn("collector rejected event", "status", status, "pipe", env.Data[model.KeyPipe])
		}
		return status, false, nil
	}

	l.logger.Warn("event delivery failed", "status", status, "error", err, "attempt", env.Attempt+1)
	return status, l.scheduleRetry(ctx, env), err
}

func (l *Logpipe) scheduleRetry(ctx context.Context, env envelope) bool {
	env.Attempt++
	if l.retryLimit > 0 && env.Attempt > l.retryLimit {
		l.logger.Error("event dropped after retries", "attempts", env.Attempt, "pipe", env.Data[model.KeyPipe])
		return false
	}
	at := l.now().Add(l.retryDelay)
	if err := l.queue.ScheduleAt(ctx, at, ActionEnqueueRequest, env); err != nil {
		l.logger.Error("failed to schedule event retry", "error", err)
		return false
	}
	return true
}

// HandleDeferred is the deferred.Handler for ActionEnqueueRequest.
func (l *Logpipe) HandleDeferred(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decoding queued event: %w", err)
	}
	if env.Data == nil {
		return fmt.Errorf("queued event has no data")
	}
	_, _, _ = l.deliver(ctx, env)
	return nil
}

// envelope is the deferred payload. Data is sent unchanged on every attempt.
type envelope struct {
	Data    map[string]any `json:"data"`
	Attempt int            `json:"attempt,omitempty"`
}
