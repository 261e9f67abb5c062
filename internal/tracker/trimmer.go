// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"sort"
	"sync"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// DefaultMaxPayloadSize is the default report budget in bytes.
const DefaultMaxPayloadSize = 524288

var (
	stringThresholds  = []int{1024, 512, 256}
	contextThresholds = []int{100, 50, 25, 10}
)

// Strategy shrinks a payload. It returns the payload it was given when
// there is nothing left to cut.
type Strategy func(t *Trimmer, payload map[string]any) map[string]any

// Trimmer keeps report payloads under a byte budget.
type Trimmer struct {
	mu             sync.RWMutex
	maxPayloadSize int
	strategies     []Strategy
}

// NewTrimmer creates a trimmer. A non-positive size selects the default.
func NewTrimmer(maxPayloadSize int) *Trimmer {
	if maxPayloadSize <= 0 {
		maxPayloadSize = DefaultMaxPayloadSize
	}
	return &Trimmer{
		maxPayloadSize: maxPayloadSize,
		strategies:     []Strategy{TrimStrings, TrimContextItems},
	}
}

// MaxPayloadSize returns the budget in bytes.
func (t *Trimmer) MaxPayloadSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxPayloadSize
}

// SetMaxPayloadSize changes the budget.
func (t *Trimmer) SetMaxPayloadSize(n int) {
	t.mu.Lock()
	t.maxPayloadSize = n
	t.mu.Unlock()
}

// Size returns the encoded length of payload.
func Size(payload map[string]any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(raw)
}

// NeedsTrimming reports whether payload is over budget.
func (t *Trimmer) NeedsTrimming(payload map[string]any) bool {
	return Size(payload) > t.MaxPayloadSize()
}

// Trim applies the strategies in order until payload fits. A payload that
// still does not fit after the last strategy is returned as it is.
func (t *Trimmer) Trim(payload map[string]any) map[string]any {
	for _, strategy := range t.strategies {
		if !t.NeedsTrimming(payload) {
			break
		}
		payload = strategy(t, payload)
	}
	return payload
}

// TrimStrings cuts every string longer than 1024, then 512, then 256 bytes.
func TrimStrings(t *Trimmer, payload map[string]any) map[string]any {
	for _, limit := range stringThresholds {
		if !t.NeedsTrimming(payload) {
			break
		}
		payload = trimStrings(payload, limit).(map[string]any)
	}
	return payload
}

func trimStrings(v any, limit int) any {
	switch x := v.(type) {
	case string:
		return truncate(x, limit)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = trimStrings(item, limit)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = trimStrings(item, limit)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, s := range x {
			out[k] = truncate(s, limit)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = truncate(s, limit)
		}
		return out
	default:
		return v
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// TrimContextItems cuts every list or map under "request" to 100, then 50,
// 25 and 10 items. Maps keep their first keys in sorted order.
func TrimContextItems(t *Trimmer, payload map[string]any) map[string]any {
	for _, limit := range contextThresholds {
		if !t.NeedsTrimming(payload) {
			break
		}
		request, ok := payload["request"].(map[string]any)
		if !ok {
			break
		}
		out := make(map[string]any, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		trimmed := make(map[string]any, len(request))
		for k, v := range request {
			trimmed[k] = trimItems(v, limit)
		}
		out["request"] = trimmed
		payload = out
	}
	return payload
}

func trimItems(v any, limit int) any {
	switch x := v.(type) {
	case []any:
		if len(x) > limit {
			x = x[:limit]
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = trimItems(item, limit)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > limit {
			keys = keys[:limit]
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = trimItems(x[k], limit)
		}
		return out
	default:
		return v
	}
}
