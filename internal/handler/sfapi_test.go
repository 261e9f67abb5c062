// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/stalkfish-go/internal/keys"
	"github.com/olegiv/stalkfish-go/internal/middleware"
	"github.com/olegiv/stalkfish-go/internal/settings"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(secret, signature string) error {
	f.calls++
	return f.err
}

var nextHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

type sfapiFixture struct {
	options  *settings.Options
	verifier *fakeVerifier
	handler  http.Handler
}

func newSFAPIFixture(limiter *middleware.IPRateLimiter) *sfapiFixture {
	f := &sfapiFixture{
		options:  settings.NewMemory(nil),
		verifier: &fakeVerifier{},
	}
	f.handler = NewSFAPIHandler(f.options, f.verifier, limiter, nil).Intercept(nextHandler)
	return f
}

func (f *sfapiFixture) post(action string, form url.Values, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/?sf-api="+url.QueryEscape(action), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signed {
		req.Header.Set(HeaderSecret, "secret")
		req.Header.Set(HeaderSignature, "c2lnbmF0dXJl")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSFAPI_PassesThroughOtherRequests(t *testing.T) {
	f := newSFAPIFixture(nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Zero(t, f.verifier.calls)
}

func TestSFAPI_GetRedirectsHome(t *testing.T) {
	f := newSFAPIFixture(nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blog/?sf-api=ping", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Zero(t, f.verifier.calls)
}

func TestSFAPI_SignatureChecks(t *testing.T) {
	tests := []struct {
		name      string
		signed    bool
		verifyErr error
		wantCode  int
		wantBody  string
	}{
		{name: "missing headers", signed: false, wantCode: http.StatusBadRequest, wantBody: `"Bad request"`},
		{name: "no stored key", signed: true, verifyErr: keys.ErrUninitialized, wantCode: http.StatusNotAcceptable, wantBody: `"Uninitialized"`},
		{name: "bad signature", signed: true, verifyErr: keys.ErrBadSignature, wantCode: http.StatusUnauthorized, wantBody: `"Bad request"`},
		{name: "valid ping", signed: true, wantCode: http.StatusOK, wantBody: `"Stalkfish ping"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSFAPIFixture(nil)
			f.verifier.err = tt.verifyErr

			rec := f.post("ping", nil, tt.signed)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestSFAPI_UnknownAction(t *testing.T) {
	f := newSFAPIFixture(nil)

	rec := f.post("drop_tables", nil, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, f.verifier.calls)
}

func TestSFAPI_ActionNameIsNormalized(t *testing.T) {
	f := newSFAPIFixture(nil)

	rec := f.post(" PING<b>", nil, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"Stalkfish ping"`, rec.Body.String())
}

func TestSFAPI_SaveCredentials(t *testing.T) {
	f := newSFAPIFixture(nil)

	rec := f.post(ActionSaveCredentials, url.Values{"token": {" tok_123 "}, "id": {"site-77"}}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "tok_123", f.options.APIKey())
	assert.Equal(t, "-77", f.options.String(settings.KeySiteID, ""))
}

func TestSFAPI_SaveCredentialsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"no token", url.Values{"id": {"7"}}},
		{"no id", url.Values{"token": {"tok"}}},
		{"markup only token", url.Values{"token": {"<script></script>"}, "id": {"7"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSFAPIFixture(nil)

			rec := f.post(ActionSaveCredentials, tt.form, true)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"success":false}`, rec.Body.String())
			assert.False(t, f.options.Has(settings.KeyAPIKey))
		})
	}
}

func TestSFAPI_VerifyConnection(t *testing.T) {
	f := newSFAPIFixture(nil)
	require.NoError(t, f.options.Set(context.Background(), settings.KeyAPIKey, "tok_123"))

	rec := f.post(ActionVerifyConnection, url.Values{"token": {"wrong"}, "id": {"9"}}, true)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
	assert.False(t, f.options.Has(settings.KeySiteID))

	rec = f.post(ActionVerifyConnection, url.Values{"token": {"tok_123"}, "id": {"9"}}, true)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "9", f.options.String(settings.KeySiteID, ""))
}

func TestSFAPI_RateLimited(t *testing.T) {
	f := newSFAPIFixture(middleware.NewIPRateLimiter(0.001, 1, nil))

	assert.Equal(t, http.StatusOK, f.post("ping", nil, true).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.post("ping", nil, true).Code)
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ping", "ping"},
		{"Save_Credentials", "save_credentials"},
		{"verify-connection", "verify-connection"},
		{"a b.c/d", "abcd"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeKey(tt.in), tt.in)
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "42", digitsOnly("42"))
	assert.Equal(t, "-77", digitsOnly("site-77"))
	assert.Equal(t, "", digitsOnly("abc"))
}
