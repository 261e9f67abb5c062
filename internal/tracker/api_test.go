// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/stalkfish-go/internal/testutil"
)

type fakeReportSender struct {
	mu      sync.Mutex
	sent    []map[string]any
	failOn  int
	panicOn int
}

func (s *fakeReportSender) Send(_ context.Context, payload map[string]any) error {
	s.mu.Lock()
	s.sent = append(s.sent, payload)
	n := len(s.sent)
	s.mu.Unlock()
	if n == s.panicOn {
		panic("transport exploded")
	}
	if n == s.failOn {
		return errors.New("bad gateway")
	}
	return nil
}

func TestAPI_FlushSurvivesFailure(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			sender := &fakeReportSender{}
			if mode == "error" {
				sender.failOn = 2
			} else {
				sender.panicOn = 2
			}
			api := NewAPI(sender, nil, true, testutil.TestLoggerSilent())
			ctx := context.Background()

			for _, class := range []string{"A", "B", "C"} {
				api.ReportPayload(ctx, map[string]any{"exception_class": class})
			}
			assert.Empty(t, sender.sent, "batch mode waits for flush")
			assert.Equal(t, 3, api.Len())

			api.Flush(ctx)
			require.Len(t, sender.sent, 3)
			assert.Equal(t, "C", sender.sent[2]["exception_class"])
			assert.Equal(t, 0, api.Len())

			api.Flush(ctx)
			assert.Len(t, sender.sent, 3, "buffer is not replayed")
		})
	}
}

func TestAPI_ImmediateMode(t *testing.T) {
	sender := &fakeReportSender{failOn: 1}
	api := NewAPI(sender, nil, false, testutil.TestLoggerSilent())

	api.ReportPayload(context.Background(), map[string]any{"exception_class": "A"})
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 0, api.Len())
}

func TestAPI_SetBatch(t *testing.T) {
	sender := &fakeReportSender{}
	api := NewAPI(sender, nil, false, testutil.TestLoggerSilent())
	api.SetBatch(true)
	api.ReportPayload(context.Background(), map[string]any{})
	assert.Empty(t, sender.sent)
	assert.Equal(t, 1, api.Len())
}

func TestAPI_TrimsBeforeSending(t *testing.T) {
	sender := &fakeReportSender{}
	api := NewAPI(sender, NewTrimmer(2000), false, testutil.TestLoggerSilent())

	api.ReportPayload(context.Background(), map[string]any{"message": strings.Repeat("m", 5000)})
	require.Len(t, sender.sent, 1)
	assert.Len(t, sender.sent[0]["message"], 1024)
}

func TestAPI_IndependentInstances(t *testing.T) {
	a := NewAPI(&fakeReportSender{}, nil, true, nil)
	b := NewAPI(&fakeReportSender{}, nil, false, nil)
	a.ReportPayload(context.Background(), map[string]any{})
	b.ReportPayload(context.Background(), map[string]any{})
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())
}
