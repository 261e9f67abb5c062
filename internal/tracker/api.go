// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ReportSender delivers one report payload.
type ReportSender interface {
	Send(ctx context.Context, payload map[string]any) error
}

// API buffers reports and sends them through the trimmer and transport.
type API struct {
	sender  ReportSender
	trimmer *Trimmer
	logger  *slog.Logger

	mu    sync.Mutex
	batch bool
	queue []map[string]any
}

// NewAPI creates a client. In batch mode reports wait for Flush.
func NewAPI(sender ReportSender, trimmer *Trimmer, batch bool, logger *slog.Logger) *API {
	if trimmer == nil {
		trimmer = NewTrimmer(DefaultMaxPayloadSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{sender: sender, trimmer: trimmer, batch: batch, logger: logger}
}

// SetBatch switches between batch and immediate sending.
func (a *API) SetBatch(batch bool) {
	a.mu.Lock()
	a.batch = batch
	a.mu.Unlock()
}

// Trimmer returns the trimmer applied before sending.
func (a *API) Trimmer() *Trimmer {
	return a.trimmer
}

// Report queues or sends r. It never fails.
func (a *API) Report(ctx context.Context, r *Report) {
	a.ReportPayload(ctx, r.Payload())
}

// ReportPayload queues or sends an already built payload.
func (a *API) ReportPayload(ctx context.Context, payload map[string]any) {
	a.mu.Lock()
	if a.batch {
		a.queue = append(a.queue, payload)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.send(ctx, payload)
}

// Len returns the number of buffered reports.
func (a *API) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Flush sends every buffered report. The buffer is emptied whatever the
// outcome; failures are logged.
func (a *API) Flush(ctx context.Context) {
	a.mu.Lock()
	queue := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, payload := range queue {
		a.send(ctx, payload)
	}
}

func (a *API) send(ctx context.Context, payload map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Warn("error report send panicked", "error", fmt.Sprint(p))
		}
	}()
	if err := a.sender.Send(ctx, a.trimmer.Trim(payload)); err != nil {
		a.logger.Warn("failed to send error report", "class", payload["exception_class"], "error", err)
	}
}
