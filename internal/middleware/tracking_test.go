// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olegiv/stalkfish-go/internal/tracker"
)

type fakeTracker struct {
	mu       sync.Mutex
	panics   []any
	requests []*http.Request
	flushes  int
}

func (f *fakeTracker) ReportPanic(ctx context.Context, value any) *tracker.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics = append(f.panics, value)
	f.requests = append(f.requests, tracker.RequestFrom(ctx))
	return nil
}

func (f *fakeTracker) Flush(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func TestTracking_AttachesRequestAndFlushes(t *testing.T) {
	ft := &fakeTracker{}
	var seen *http.Request
	handler := Tracking(ft, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tracker.RequestFrom(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := executeRequest(handler, http.MethodPost, "/api/v1/events")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	if assert.NotNil(t, seen) {
		assert.Equal(t, "/api/v1/events", seen.URL.Path)
	}
	assert.Equal(t, 1, ft.flushes)
	assert.Empty(t, ft.panics)
}

func TestTracking_ReportsPanic(t *testing.T) {
	ft := &fakeTracker{}
	handler := Tracking(ft, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("db gone")
	}))

	rec := executeRequest(handler, http.MethodGet, "/api/v1/triggers")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []any{"db gone"}, ft.panics)
	if assert.Len(t, ft.requests, 1) && assert.NotNil(t, ft.requests[0]) {
		assert.Equal(t, "/api/v1/triggers", ft.requests[0].URL.Path)
	}
	assert.Equal(t, 1, ft.flushes)
}

func TestTracking_AbortHandlerIsNotReported(t *testing.T) {
	ft := &fakeTracker{}
	handler := Tracking(ft, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Empty(t, ft.panics)
	assert.Equal(t, 1, ft.flushes)
}
