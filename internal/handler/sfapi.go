// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the HTTP handlers for the collector callback
// endpoint and service health.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/stalkfish-go/internal/keys"
	"github.com/olegiv/stalkfish-go/internal/middleware"
	"github.com/olegiv/stalkfish-go/internal/settings"
)

// SFAPIParam is the query parameter that selects a collector callback.
const SFAPIParam = "sf-api"

// Headers carried by signed collector callbacks.
const (
	HeaderSecret    = "X-Stalkfish-Secret"
	HeaderSignature = "X-Stalkfish-Signature"
)

// Callback actions.
const (
	ActionPing             = "ping"
	ActionSaveCredentials  = "save_credentials"
	ActionVerifyConnection = "verify_connection"
)

// Verifier checks a signed callback against the stored collector key.
type Verifier interface {
	Verify(secret, signature string) error
}

// SFAPIHandler serves the "?sf-api=<action>" callbacks the collector uses
// to ping the site and hand over credentials.
type SFAPIHandler struct {
	options  *settings.Options
	verifier Verifier
	limiter  *middleware.IPRateLimiter
	policy   *bluemonday.Policy
	logger   *slog.Logger
	actions  map[string]http.HandlerFunc
}

// NewSFAPIHandler creates the callback handler. limiter may be nil.
func NewSFAPIHandler(options *settings.Options, verifier Verifier, limiter *middleware.IPRateLimiter, logger *slog.Logger) *SFAPIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &SFAPIHandler{
		options:  options,
		verifier: verifier,
		limiter:  limiter,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}
	h.actions = map[string]http.HandlerFunc{
		ActionPing:             h.ping,
		ActionSaveCredentials:  h.saveCredentials,
		ActionVerifyConnection: h.verifyConnection,
	}
	return h
}

// Intercept serves callback requests on any path and passes everything
// else to next.
func (h *SFAPIHandler) Intercept(next http.Handler) http.Handler {
	serve := http.Handler(http.HandlerFunc(h.serve))
	if h.limiter != nil {
		serve = h.limiter.Middleware()(serve)
	}
	serve = middleware.NoCache(serve)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get(SFAPIParam) == "" {
			next.ServeHTTP(w, r)
			return
		}
		serve.ServeHTTP(w, r)
	})
}

func (h *SFAPIHandler) serve(w http.ResponseWriter, r *http.Request) {
	action := sanitizeKey(h.clean(r.URL.Query().Get(SFAPIParam)))

	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusBadRequest)
		return
	}

	secret := r.Header.Get(HeaderSecret)
	signature := r.Header.Get(HeaderSignature)
	if secret == "" || signature == "" {
		writeJSONValue(w, http.StatusBadRequest, "Bad request")
		return
	}

	if err := h.verifier.Verify(secret, signature); err != nil {
		if errors.Is(err, keys.ErrUninitialized) {
			writeJSONValue(w, http.StatusNotAcceptable, "Uninitialized")
			return
		}
		h.logger.Warn("rejected collector callback", "action", action, "error", err)
		writeJSONValue(w, http.StatusUnauthorized, "Bad request")
		return
	}

	fn, ok := h.actions[action]
	if !ok {
		writeJSONValue(w, http.StatusBadRequest, "Bad request")
		return
	}
	fn(w, r)
}

func (h *SFAPIHandler) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSONValue(w, http.StatusOK, "Stalkfish ping")
}

// credentials reads the token and numeric site id posted by the collector.
func (h *SFAPIHandler) credentials(r *http.Request) (token, siteID string, ok bool) {
	if err := r.ParseForm(); err != nil {
		return "", "", false
	}
	token = h.clean(r.PostFormValue("token"))
	siteID = digitsOnly(r.PostFormValue("id"))
	return token, siteID, token != "" && siteID != ""
}

func (h *SFAPIHandler) saveCredentials(w http.ResponseWriter, r *http.Request) {
	token, siteID, ok := h.credentials(r)
	if !ok {
		writeJSONValue(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	if err := h.options.Set(r.Context(), settings.KeyAPIKey, token); err != nil {
		h.logger.Error("failed to store api key", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}
	if err := h.options.Set(r.Context(), settings.KeySiteID, siteID); err != nil {
		h.logger.Error("failed to store site id", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}

	h.logger.Info("collector credentials saved", "site_id", siteID)
	writeJSONSuccess(w, nil)
}

func (h *SFAPIHandler) verifyConnection(w http.ResponseWriter, r *http.Request) {
	token, siteID, ok := h.credentials(r)
	if !ok || token != h.options.APIKey() {
		writeJSONValue(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	if err := h.options.Set(r.Context(), settings.KeySiteID, siteID); err != nil {
		h.logger.Error("failed to store site id", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store site id")
		return
	}

	writeJSONSuccess(w, nil)
}

// clean strips markup and surrounding whitespace from an inbound value.
func (h *SFAPIHandler) clean(s string) string {
	return strings.TrimSpace(h.policy.Sanitize(s))
}

// sanitizeKey lowercases s and keeps only letters, digits, dashes and
// underscores.
func sanitizeKey(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// digitsOnly keeps the characters of an integer literal.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
