// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package deferred

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/stalkfish-go/internal/store"
	"github.com/olegiv/stalkfish-go/internal/util"
)

// TickHook runs after every tick, including ticks that failed.
type TickHook func(ctx context.Context)

// Handler runs one deferred action. A returned error marks the action
// failed; it is not retried by the runner.
type Handler func(ctx context.Context, payload []byte) error

const (
	// staleAfter is how long an action may stay running before it is
	// handed out again.
	staleAfter = 10 * time.Minute
	// keepFinished is how long finished actions are kept for inspection.
	keepFinished = 7 * 24 * time.Hour
)

// Runner executes due actions on a cron schedule.
type Runner struct {
	queries  *store.Queries
	logger   *slog.Logger
	cron     *cron.Cron
	schedule string
	batch    int
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
	hooks    []TickHook

	tickMu sync.Mutex
}

// NewRunner creates a runner reading actions from db. schedule is a
// standard cron spec or descriptor such as "@every 10s".
func NewRunner(db *sql.DB, schedule string, batch int, logger *slog.Logger) *Runner {
	if batch <= 0 {
		batch = 25
	}
	return &Runner{
		queries:  store.New(db),
		logger:   logger,
		cron:     cron.New(),
		schedule: schedule,
		batch:    batch,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for action, replacing any previous one.
func (r *Runner) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// OnTickDone registers fn to run at the end of every tick. Reports buffered
// by the tracker during a tick are flushed this way.
func (r *Runner) OnTickDone(fn TickHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *Runner) tickDone(ctx context.Context) {
	r.mu.RLock()
	hooks := r.hooks
	r.mu.RUnlock()
	for _, fn := range hooks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Warn("deferred tick hook panicked", "error", fmt.Sprint(p))
				}
			}()
			fn(ctx)
		}()
	}
}

func (r *Runner) handler(action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// Start begins processing due actions on the configured schedule.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx := context.Background()
		if _, err := r.Tick(ctx); err != nil {
			r.logger.Error("failed to process deferred actions", "error", err)
			r.tickDone(ctx)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling deferred runner: %w", err)
	}

	r.cron.Start()
	r.logger.Info("deferred runner started", "schedule", r.schedule)
	return nil
}

// Stop waits for a running tick to finish and stops the schedule.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("deferred runner stopped")
}

// Tick runs every due action once and returns how many were executed.
// Overlapping ticks are serialized. The OnTickDone hooks run before it
// returns.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	defer r.tickDone(ctx)

	now := r.now()
	if n, err := r.queries.ReleaseStaleDeferredActions(ctx, now, now.Add(-staleAfter)); err != nil {
		return 0, fmt.Errorf("releasing stale actions: %w", err)
	} else if n > 0 {
		r.logger.Warn("released stale deferred actions", "count", n)
	}

	due, err := r.queries.ListDueDeferredActions(ctx, now, int64(r.batch))
	if err != nil {
		return 0, fmt.Errorf("listing due actions: %w", err)
	}

	ran := 0
	for _, a := range due {
		claimed, err := r.queries.ClaimDeferredAction(ctx, a.ID, r.now())
		if err != nil {
			r.logger.Error("failed to claim deferred action", "id", a.ID, "action", a.Action, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		ran++
		r.finish(ctx, a, r.run(ctx, a))
	}

	if _, err := r.queries.DeleteFinishedDeferredActions(ctx, now.Add(-keepFinished)); err != nil {
		r.logger.Warn("failed to purge finished deferred actions", "error", err)
	}
	return ran, nil
}

func (r *Runner) run(ctx context.Context, a store.DeferredAction) (err error) {
	h, ok := r.handler(a.Action)
	if !ok {
		return fmt.Errorf("no handler registered for %q", a.Action)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h(ctx, []byte(a.Payload))
}

func (r *Runner) finish(ctx context.Context, a store.DeferredAction, runErr error) {
	params := store.FinishDeferredActionParams{
		ID:        a.ID,
		Status:    store.DeferredComplete,
		UpdatedAt: r.now(),
	}
	if runErr != nil {
		params.Status = store.DeferredFailed
		params.LastError = util.NullStringFromValue(runErr.Error())
		r.logger.Warn("deferred action failed", "id", a.ID, "action", a.Action, "error", runErr)
	} else {
		r.logger.Debug("deferred action complete", "id", a.ID, "action", a.Action)
	}
	if err := r.queries.FinishDeferredAction(ctx, params); err != nil {
		r.logger.Error("failed to record deferred action outcome", "id", a.ID, "error", err)
	}
}

// Pending returns the number of actions waiting to run.
func (r *Runner) Pending(ctx context.Context) (int64, error) {
	return r.queries.CountDeferredActionsByStatus(ctx, store.DeferredPending)
}
