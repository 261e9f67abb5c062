// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/olegiv/stalkfish-go/internal/util"
)

// redactedHeaders never leave the process.
var redactedHeaders = map[string]bool{
	"Authorization":         true,
	"Proxy-Authorization":   true,
	"X-Stalkfish-Secret":    true,
	"X-Stalkfish-Signature": true,
}

const redacted = "[redacted]"

// ContextSource produces the ambient part of a report's context.
type ContextSource interface {
	Map() map[string]any
}

// ContextProvider is implemented by errors that carry their own report
// context.
type ContextProvider interface {
	TrackerContext() map[string]any
}

type requestKey struct{}

// WithRequest attaches the inbound request so reports raised while serving
// it carry request context.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request attached to ctx, or nil.
func RequestFrom(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return r
}

// DetectContext returns the request context when ctx carries a request and
// the console context otherwise.
func DetectContext(ctx context.Context) ContextSource {
	if r := RequestFrom(ctx); r != nil {
		return RequestContext{Request: r}
	}
	return ConsoleContext{Arguments: os.Args}
}

// ConsoleContext describes a process run from the command line.
type ConsoleContext struct {
	Arguments []string
}

// Map implements ContextSource.
func (c ConsoleContext) Map() map[string]any {
	args := make([]any, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = a
	}
	return map[string]any{"arguments": args}
}

// RequestContext describes an inbound HTTP request.
type RequestContext struct {
	Request *http.Request
}

// Map implements ContextSource. The request body is only included when it
// has already been parsed.
func (c RequestContext) Map() map[string]any {
	r := c.Request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	out := map[string]any{
		"url":       scheme + "://" + r.Host + r.URL.RequestURI(),
		"ip":        util.ClientIP(r),
		"method":    r.Method,
		"useragent": r.UserAgent(),
		"data": map[string]any{
			"queryString": valuesMap(r.URL.Query()),
			"body":        valuesMap(r.PostForm),
		},
		"headers": headersMap(r.Header),
		"cookies": cookiesMap(r.Cookies()),
		"session": map[string]any{},
	}
	if ua := r.UserAgent(); ua != "" {
		out["browser"] = browserMap(ua)
	}
	return out
}

func browserMap(raw string) map[string]any {
	ua := useragent.Parse(raw)
	device := "desktop"
	switch {
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	case ua.Bot:
		device = "bot"
	}
	return map[string]any{
		"name":       ua.Name,
		"version":    ua.Version,
		"os":         ua.OS,
		"os_version": ua.OSVersion,
		"device":     device,
	}
}

func valuesMap(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

func headersMap(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, vs := range h {
		canonical := http.CanonicalHeaderKey(k)
		list := make([]any, len(vs))
		for i, v := range vs {
			if redactedHeaders[canonical] {
				v = redacted
			}
			list[i] = v
		}
		out[strings.ToLower(canonical)] = list
	}
	return out
}

func cookiesMap(cookies []*http.Cookie) map[string]any {
	out := make(map[string]any, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

// mergeDistinct merges src into a copy of dst. Nested maps present on both
// sides are merged recursively; any other value from src replaces dst's.
func mergeDistinct(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		sm, ok := v.(map[string]any)
		if dm, both := out[k].(map[string]any); ok && both {
			out[k] = mergeDistinct(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}
