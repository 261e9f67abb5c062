// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/collector"
)

// ErrorsPath is the collector path for error reports.
const ErrorsPath = "errors"

// LastErrorKey is the cache key of the last sent fingerprint.
const LastErrorKey = "stalkfish_last_error"

// DuplicateWindow is how close two identical reports must be to count as
// one.
const DuplicateWindow = time.Second

// DefaultRecursionGuards lists methods whose reports are never sent when
// they appear as the third frame.
var DefaultRecursionGuards = []string{"map_meta_cap"}

// Sender posts JSON to the collector.
type Sender interface {
	PostJSON(ctx context.Context, path, apiKey string, payload any) (*collector.Response, error)
}

// Fingerprint identifies a report for duplicate suppression.
type Fingerprint struct {
	ExceptionClass string `json:"exception_class"`
	File           string `json:"file"`
	Method         string `json:"method"`
	OccurredAt     int64  `json:"occurred_at"`
}

// Same reports whether f and other describe the same error within the
// duplicate window.
func (f Fingerprint) Same(other Fingerprint) bool {
	if f.ExceptionClass != other.ExceptionClass || f.File != other.File || f.Method != other.Method {
		return false
	}
	delta := f.OccurredAt - other.OccurredAt
	if delta < 0 {
		delta = -delta
	}
	return delta <= int64(DuplicateWindow/time.Second)
}

// FingerprintOf extracts the fingerprint of a payload.
func FingerprintOf(payload map[string]any) Fingerprint {
	fp := Fingerprint{
		ExceptionClass: stringField(payload["exception_class"]),
		OccurredAt:     intField(payload["occurred_at"]),
	}
	if frame := frameAt(payload, 0); frame != nil {
		fp.File = stringField(frame["file"])
		fp.Method = stringField(frame["method"])
	}
	return fp
}

// Transport sends report payloads, dropping near-duplicates.
type Transport struct {
	sender Sender
	apiKey func() string
	last   *cache.TypedCache[Fingerprint]
	guards map[string]bool
	logger *slog.Logger
}

// NewTransport creates a transport. apiKey is read on every send.
func NewTransport(sender Sender, apiKey func() string, c cache.Cache, logger *slog.Logger) *Transport {
	t := &Transport{
		sender: sender,
		apiKey: apiKey,
		last:   cache.NewTypedCache[Fingerprint](c, DuplicateWindow),
		guards: map[string]bool{},
		logger: logger,
	}
	for _, m := range DefaultRecursionGuards {
		t.guards[m] = true
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Send posts payload to the collector unless it is a recursion-guarded
// frame or a duplicate of the last report. Skips return nil.
//
// The fingerprint check and update are not atomic: concurrent senders may
// both pass the check.
func (t *Transport) Send(ctx context.Context, payload map[string]any) error {
	if frame := frameAt(payload, 2); frame != nil && t.guards[stringField(frame["method"])] {
		return nil
	}

	fp := FingerprintOf(payload)
	if last, ok := t.last.Get(ctx, LastErrorKey); ok && last.Same(fp) {
		t.logger.Debug("duplicate error report skipped", "class", fp.ExceptionClass)
		return nil
	}

	_, err := t.sender.PostJSON(ctx, ErrorsPath, t.apiKey(), payload)
	if cerr := t.last.SetWithTTL(ctx, LastErrorKey, &fp, DuplicateWindow); cerr != nil {
		t.logger.Debug("failed to store error fingerprint", "error", cerr)
	}
	return err
}

func frameAt(payload map[string]any, i int) map[string]any {
	switch frames := payload["stacktrace"].(type) {
	case []any:
		if i < len(frames) {
			f, _ := frames[i].(map[string]any)
			return f
		}
	case []map[string]any:
		if i < len(frames) {
			return frames[i]
		}
	}
	return nil
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func intField(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(math.Round(n))
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
