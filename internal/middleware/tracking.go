// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/stalkfish-go/internal/tracker"
)

// ErrorTracker is the part of the tracker used by Tracking.
type ErrorTracker interface {
	ReportPanic(ctx context.Context, value any) *tracker.Report
	Flush(ctx context.Context)
}

// Tracking attaches the request to the context for error reports, reports
// handler panics as 500 responses, and flushes batched reports when the
// request completes.
func Tracking(t ErrorTracker, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tracker.WithRequest(r.Context(), r)

			defer func() {
				p := recover()
				if p != nil {
					if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						t.Flush(context.WithoutCancel(ctx))
						panic(p)
					}
					logger.Error("panic serving request",
						"component", tracker.LogComponent,
						"method", r.Method, "path", r.URL.Path, "panic", p)
					t.ReportPanic(ctx, p)
					WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
				}
				t.Flush(context.WithoutCancel(ctx))
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
