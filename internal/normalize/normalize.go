// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package normalize fills the required fields of an activity event and caps
// the size of its metadata.
package normalize

import (
	"fmt"
	"strconv"

	"github.com/olegiv/stalkfish-go/internal/model"
)

// MaxMetaChars is the largest metadata character count sent as-is.
const MaxMetaChars = 4000

// MetaOmittedMessage replaces metadata larger than MaxMetaChars.
const MetaOmittedMessage = "Values omitted as it exceeded more than 4000 characters"

var requiredStrings = []string{model.KeyPipe, model.KeyContext, model.KeyAction, model.KeyMessage}

// Normalize returns a copy of raw with every required field present.
// Empty or missing string fields become model.Fallback. Meta is always a
// map: missing meta becomes empty, lists and scalars are keyed by position,
// and oversized meta is replaced by a single message entry.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+len(requiredStrings)+1)
	for k, v := range raw {
		out[k] = v
	}

	meta := AsMap(raw[model.KeyMeta])
	if CountChars(meta) > MaxMetaChars {
		meta = map[string]any{"message": MetaOmittedMessage}
	}
	out[model.KeyMeta] = meta

	for _, key := range requiredStrings {
		s := Scalar(out[key])
		if s == "" {
			s = model.Fallback
		}
		out[key] = s
	}
	return out
}

// AsMap coerces a meta value to a map.
func AsMap(v any) map[string]any {
	switch m := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	case []any:
		out := make(map[string]any, len(m))
		for i, item := range m {
			out[strconv.Itoa(i)] = item
		}
		return out
	case []string:
		out := make(map[string]any, len(m))
		for i, item := range m {
			out[strconv.Itoa(i)] = item
		}
		return out
	case string:
		if m == "" {
			return map[string]any{}
		}
		return map[string]any{"0": m}
	default:
		return map[string]any{"0": v}
	}
}

// CountChars sums the length of every leaf key and leaf value, descending
// into nested maps and lists. Container keys are not counted.
func CountChars(v any) int {
	switch m := v.(type) {
	case map[string]any:
		n := 0
		for k, item := range m {
			n += countLeaf(k, item)
		}
		return n
	case map[string]string:
		n := 0
		for k, s := range m {
			n += len(k) + len(s)
		}
		return n
	case []any:
		n := 0
		for i, item := range m {
			n += countLeaf(strconv.Itoa(i), item)
		}
		return n
	case []string:
		n := 0
		for i, s := range m {
			n += len(strconv.Itoa(i)) + len(s)
		}
		return n
	default:
		return len(Scalar(v))
	}
}

func countLeaf(key string, v any) int {
	switch v.(type) {
	case map[string]any, map[string]string, []any, []string:
		return CountChars(v)
	default:
		return len(key) + len(Scalar(v))
	}
}

// Scalar renders a leaf value the way it is form-encoded for the collector.
// Booleans become "1" or "", nil becomes "".
func Scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "1"
		}
		return ""
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case uint:
		return strconv.FormatUint(uint64(s), 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
