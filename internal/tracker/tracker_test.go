// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/stalkfish-go/internal/collector"
	"github.com/olegiv/stalkfish-go/internal/logpipe"
	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/testutil"
)

type trackerSettings struct{ disabled bool }

func (s trackerSettings) APIKey() string         { return "key-1" }
func (s trackerSettings) ErrorLogsEnabled() bool { return !s.disabled }

var trackerNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newTracker(t *testing.T, opts Options) (*Tracker, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	if opts.Settings == nil {
		opts.Settings = trackerSettings{}
	}
	opts.Sender = sender
	opts.Logger = testutil.TestLoggerSilent()
	opts.Now = func() time.Time { return trackerNow }
	tr, err := Register(opts)
	require.NoError(t, err)
	return tr, sender
}

func TestRegister_RequiresSettings(t *testing.T) {
	_, err := Register(Options{Sender: &recordingSender{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, collector.ErrMissingParameter)
	assert.Contains(t, err.Error(), "`settings`")
}

func TestRegister_RequiresTimeout(t *testing.T) {
	_, err := Register(Options{Settings: trackerSettings{}, CollectorURL: "https://app.stalkfish.com"})
	assert.ErrorIs(t, err, collector.ErrMissingParameter)
}

func TestTracker_ReportImmediate(t *testing.T) {
	tr, sender := newTracker(t, Options{
		Runtime:         logpipe.Runtime{PluginVersion: "1.0.0"},
		ApplicationPath: "/srv/app",
	})
	tr.Context("region", "eu")

	ctx := logpipe.WithActor(context.Background(), &model.Actor{ID: 9, Username: "erin", Role: "administrator"})
	r := tr.Report(ctx, errors.New("boom"))
	require.NotNil(t, r)
	require.Equal(t, 1, sender.calls())

	p := sender.payloads[0]
	assert.Equal(t, "boom", p["message"])
	assert.Equal(t, trackerNow.Unix(), p["occurred_at"])
	assert.Equal(t, "/srv/app", p["application_path"])
	assert.Equal(t, "erin", p["user"].(map[string]any)["username"])
	assert.Equal(t, map[string]any{"region": "eu"}, p["request"].(map[string]any)["context"])
	assert.Equal(t, "TestTracker_ReportImmediate", p["stacktrace"].([]any)[0].(map[string]any)["method"])
}

func TestTracker_BatchUntilFlush(t *testing.T) {
	tr, sender := newTracker(t, Options{Batch: true})
	ctx := context.Background()

	tr.Report(ctx, errors.New("one"))
	tr.ReportMessage(ctx, "two", "ERROR")
	assert.Equal(t, 0, sender.calls())
	assert.Equal(t, 2, tr.API().Len())

	tr.Flush(ctx)
	assert.Equal(t, 2, sender.calls())
}

func TestTracker_Disabled(t *testing.T) {
	tr, sender := newTracker(t, Options{Settings: trackerSettings{disabled: true}})
	ctx := context.Background()

	assert.Nil(t, tr.Report(ctx, errors.New("boom")))
	assert.Nil(t, tr.ReportMessage(ctx, "boom", "ERROR"))
	assert.False(t, tr.ReportPayload(ctx, map[string]any{}))
	assert.Equal(t, 0, sender.calls())
}

func TestTracker_FilterAndMiddleware(t *testing.T) {
	errIgnored := errors.New("ignored")
	tr, sender := newTracker(t, Options{
		Filter: func(err error) bool { return !errors.Is(err, errIgnored) },
		Middleware: []Middleware{
			func(r *Report) *Report {
				if strings.Contains(r.Message, "secret") {
					return nil
				}
				return r.Group("deploy", map[string]any{"sha": "abc123"})
			},
		},
	})
	ctx := context.Background()

	assert.Nil(t, tr.Report(ctx, errIgnored))
	assert.Nil(t, tr.Report(ctx, errors.New("secret leaked")))
	require.NotNil(t, tr.Report(ctx, errors.New("kept")))

	require.Equal(t, 1, sender.calls())
	assert.Equal(t, map[string]any{"sha": "abc123"}, sender.payloads[0]["request"].(map[string]any)["deploy"])
}

func TestTracker_HandleError(t *testing.T) {
	tr, sender := newTracker(t, Options{})
	ctx := context.Background()

	assert.NoError(t, tr.HandleError(ctx, nil))
	err := errors.New("write failed")
	assert.Same(t, err, tr.HandleError(ctx, err))
	assert.Equal(t, 1, sender.calls())
}

func TestTracker_RecoverRepanics(t *testing.T) {
	tr, sender := newTracker(t, Options{Batch: true})
	ctx := context.Background()

	assert.PanicsWithValue(t, "kaboom", func() {
		defer tr.Recover(ctx)
		panic("kaboom")
	})

	require.Equal(t, 1, sender.calls(), "recover flushes before panicking again")
	p := sender.payloads[0]
	assert.Equal(t, "string", p["exception_class"])
	assert.Equal(t, "kaboom", p["message"])
}

func TestTracker_ReportPanicWithError(t *testing.T) {
	tr, sender := newTracker(t, Options{})
	tr.ReportPanic(context.Background(), errors.New("nil map"))
	require.Equal(t, 1, sender.calls())
	assert.Equal(t, "*errors.errorString", sender.payloads[0]["exception_class"])
}

func TestTracker_ReportPayload(t *testing.T) {
	tr, sender := newTracker(t, Options{})
	ok := tr.ReportPayload(context.Background(), map[string]any{
		"exception_class": "E_WARNING",
		"occurred_at":     float64(trackerNow.Unix()),
		"stacktrace":      []any{map[string]any{"file": "wp-includes/capabilities.php", "method": "f"}},
	})
	assert.True(t, ok)
	assert.Equal(t, 1, sender.calls())
	assert.Equal(t, float64(trackerNow.Unix()), sender.payloads[0]["occurred_at"], "host timestamp kept")
}

func TestTracker_ReportPayloadFillsIdentity(t *testing.T) {
	tr, sender := newTracker(t, Options{})
	payload := map[string]any{"exception_class": "E_NOTICE", "message": "undefined index"}
	require.True(t, tr.ReportPayload(context.Background(), payload))
	require.Equal(t, 1, sender.calls())

	p := sender.payloads[0]
	id, err := uuid.Parse(p["tracking_uuid"].(string))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Equal(t, trackerNow.Unix(), p["occurred_at"])
	assert.NotContains(t, payload, "tracking_uuid", "caller map untouched")

	require.True(t, tr.ReportPayload(context.Background(), map[string]any{"tracking_uuid": "fixed-id"}))
	assert.Equal(t, "fixed-id", sender.payloads[1]["tracking_uuid"])
}

func TestTracker_RequestContext(t *testing.T) {
	tr, sender := newTracker(t, Options{})
	req := httptest.NewRequest("POST", "https://site.test/wp-admin/post.php?action=edit", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.RemoteAddr = "198.51.100.4:1234"

	tr.Report(WithRequest(context.Background(), req), errors.New("boom"))
	require.Equal(t, 1, sender.calls())

	request := sender.payloads[0]["request"].(map[string]any)
	assert.Equal(t, "https://site.test/wp-admin/post.php?action=edit", request["url"])
	assert.Equal(t, "POST", request["method"])
	assert.Equal(t, "198.51.100.4", request["ip"])
	assert.Equal(t, []any{redacted}, request["headers"].(map[string]any)["authorization"])
	assert.Equal(t, "edit", request["data"].(map[string]any)["queryString"].(map[string]any)["action"])
	assert.Equal(t, "Chrome", request["browser"].(map[string]any)["name"])
}

func TestTracker_ReportLog(t *testing.T) {
	tr, sender := newTracker(t, Options{})

	r := tr.ReportLog(context.Background(), "queue stalled", "error", map[string]any{"pending": 12})
	require.NotNil(t, r)
	require.Equal(t, 1, sender.calls())

	p := sender.payloads[0]
	assert.Equal(t, "error", p["exception_class"])
	assert.Equal(t, "queue stalled", p["message"])
	assert.Equal(t, map[string]any{"pending": 12}, p["request"].(map[string]any)["log"])
}
