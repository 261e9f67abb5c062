// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package collector is the HTTP client for the remote collector.
package collector

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultTimeout bounds every collector request.
const DefaultTimeout = 10 * time.Second

// maxResponseLen caps how much of a response body is read.
const maxResponseLen = 64 * 1024

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client posts to the collector API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	events    *http.Client
}

// New creates a client. A zero timeout is rejected.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		return nil, missingParameter("timeout")
	}
	if opts.BaseURL == "" {
		return nil, missingParameter("baseUrl")
	}

	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
	}
	if opts.Transport != nil {
		c.http = &http.Client{Timeout: opts.Timeout, Transport: opts.Transport}
		c.events = c.http
		return c, nil
	}

	c.http = &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	// Event delivery runs over HTTP/1.1 without certificate verification.
	c.events = &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   false,
			TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // collector parity
		},
	}
	return c, nil
}

// BaseURL returns the collector root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL of an API path such as "events".
func (c *Client) URL(path string) string {
	return c.baseURL + "/api/" + strings.TrimLeft(path, "/")
}

// Response is a completed collector response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// PostForm sends data form-encoded to the events client. The status code
// is returned for every response, including error statuses; err is only
// set when no response was received.
func (c *Client) PostForm(ctx context.Context, path, apiKey string, data map[string]any) (int, error) {
	body := EncodeForm(data).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), strings.NewReader(body))
	if err != nil {
		return 0, transportError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setCommon(req, apiKey)

	resp, err := c.do(c.events, req)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// PostJSON sends payload as JSON and maps the status to an error kind.
func (c *Client) PostJSON(ctx context.Context, path, apiKey string, payload any) (*Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(raw))
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setCommon(req, apiKey)

	resp, err := c.do(c.http, req)
	if err != nil {
		return nil, err
	}
	if kind := classify(resp.StatusCode); kind != nil {
		return resp, &ResponseError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Errors:     bodyErrors(resp.Body),
			kind:       kind,
		}
	}
	return resp, nil
}

// Post sends an empty POST with extra headers and returns the raw
// response without status mapping.
func (c *Client) Post(ctx context.Context, path string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), http.NoBody)
	if err != nil {
		return nil, transportError(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.setCommon(req, "")
	return c.do(c.http, req)
}

func (c *Client) setCommon(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *Client) do(hc *http.Client, req *http.Request) (*Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// bodyErrors extracts validation messages from a JSON error body of the
// form {"message": "...", "errors": {"field": ["..."]}}.
func bodyErrors(body []byte) []string {
	var parsed struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return nil
	}
	var out []string
	if parsed.Message != "" {
		out = append(out, parsed.Message)
	}
	fields := make([]string, 0, len(parsed.Errors))
	for field := range parsed.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, m := range parsed.Errors[field] {
			out = append(out, field+": "+m)
		}
	}
	return out
}
