// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package collector

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/olegiv/stalkfish-go/internal/normalize"
)

// EncodeForm flattens data into bracketed form fields, e.g.
// meta[old][title]=x. Keys are sorted; nil values are omitted and booleans
// encode as 1 or 0.
func EncodeForm(data map[string]any) url.Values {
	v := url.Values{}
	for _, k := range sortedKeys(data) {
		appendField(v, k, data[k])
	}
	return v
}

func appendField(v url.Values, key string, value any) {
	switch t := value.(type) {
	case nil:
	case bool:
		if t {
			v.Add(key, "1")
		} else {
			v.Add(key, "0")
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			appendField(v, key+"["+k+"]", t[k])
		}
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v.Add(key+"["+k+"]", t[k])
		}
	case []any:
		for i, item := range t {
			appendField(v, key+"["+strconv.Itoa(i)+"]", item)
		}
	case []string:
		for i, item := range t {
			v.Add(key+"["+strconv.Itoa(i)+"]", item)
		}
	default:
		v.Add(key, normalize.Scalar(value))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
