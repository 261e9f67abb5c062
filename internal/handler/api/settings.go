// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/settings"
)

// APIKeyRequest sets the collector API key.
type APIKeyRequest struct {
	Key string `json:"key"`
}

// UpdateAPIKey handles POST /api/v1/api-key.
func (h *Handler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		WriteValidationError(w, map[string]string{"key": "Required"})
		return
	}

	if err := h.options.Set(r.Context(), settings.KeyAPIKey, req.Key); err != nil {
		h.logger.Error("failed to store api key", "error", err)
		WriteInternalError(w, "Failed to store API key")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": true})
}

// ListTriggers handles GET /api/v1/triggers.
func (h *Handler) ListTriggers(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.catalog.Triggers())
}

// ExcludeRulesResponse returns the stored rules in both encodings.
type ExcludeRulesResponse struct {
	Rules   []model.ExclusionRule  `json:"rules"`
	Columns settings.ColumnarRules `json:"columns"`
}

// ExcludeRulesRequest replaces the stored rules. When Rows is present the
// columnar form is used and Rules is ignored.
type ExcludeRulesRequest struct {
	Rules        []model.ExclusionRule `json:"rules"`
	Rows         map[string]string     `json:"rows"`
	Pipe         map[string]string     `json:"pipe"`
	Context      map[string]string     `json:"context"`
	Action       map[string]string     `json:"action"`
	AuthorOrRole map[string]string     `json:"author_or_role"`
}

// rules returns the requested rule list.
func (req ExcludeRulesRequest) rules() []model.ExclusionRule {
	if req.Rows == nil {
		return req.Rules
	}
	return settings.ColumnarRules{
		Rows:         req.Rows,
		Pipe:         req.Pipe,
		Context:      req.Context,
		Action:       req.Action,
		AuthorOrRole: req.AuthorOrRole,
	}.Rules()
}

func (h *Handler) writeExcludeRules(w http.ResponseWriter) {
	rules := h.options.ExclusionRules()
	if rules == nil {
		rules = []model.ExclusionRule{}
	}
	WriteSuccess(w, ExcludeRulesResponse{Rules: rules, Columns: settings.Columns(rules)})
}

// GetExcludeRules handles GET /api/v1/settings/exclude-rules.
func (h *Handler) GetExcludeRules(w http.ResponseWriter, _ *http.Request) {
	h.writeExcludeRules(w)
}

// UpdateExcludeRules handles PUT /api/v1/settings/exclude-rules.
func (h *Handler) UpdateExcludeRules(w http.ResponseWriter, r *http.Request) {
	var req ExcludeRulesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.options.SetExclusionRules(r.Context(), req.rules()); err != nil {
		if errors.Is(err, settings.ErrEmptyRule) {
			WriteValidationError(w, map[string]string{"rules": err.Error()})
			return
		}
		h.logger.Error("failed to store exclusion rules", "error", err)
		WriteInternalError(w, "Failed to store exclusion rules")
		return
	}
	h.writeExcludeRules(w)
}

// RequestTypeRequest selects the delivery mode.
type RequestTypeRequest struct {
	RequestType string `json:"request_type"`
}

// UpdateRequestType handles PUT /api/v1/settings/request-type.
func (h *Handler) UpdateRequestType(w http.ResponseWriter, r *http.Request) {
	var req RequestTypeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	rt := model.RequestType(strings.TrimSpace(req.RequestType))
	if rt != model.RequestImmediate && rt != model.RequestAsync {
		WriteValidationError(w, map[string]string{"request_type": "Must be immediate or async"})
		return
	}

	if err := h.options.Set(r.Context(), settings.KeyRequestType, string(rt)); err != nil {
		h.logger.Error("failed to store request type", "error", err)
		WriteInternalError(w, "Failed to store request type")
		return
	}
	WriteSuccess(w, map[string]string{"request_type": string(rt)})
}

// LogsRequest toggles activity and error logging. Absent fields are left
// unchanged.
type LogsRequest struct {
	ActivityLogs *bool `json:"activity_logs"`
	ErrorLogs    *bool `json:"error_logs"`
}

// UpdateLogs handles PUT /api/v1/settings/logs.
func (h *Handler) UpdateLogs(w http.ResponseWriter, r *http.Request) {
	var req LogsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	updates := []struct {
		key   string
		value *bool
	}{
		{settings.KeyActivityLogs, req.ActivityLogs},
		{settings.KeyErrorLogs, req.ErrorLogs},
	}
	for _, u := range updates {
		if u.value == nil {
			continue
		}
		if err := h.options.Set(r.Context(), u.key, *u.value); err != nil {
			h.logger.Error("failed to store logging toggle", "key", u.key, "error", err)
			WriteInternalError(w, "Failed to store settings")
			return
		}
	}

	WriteSuccess(w, map[string]bool{
		"activity_logs": h.options.ActivityLogsEnabled(),
		"error_logs":    h.options.ErrorLogsEnabled(),
	})
}
