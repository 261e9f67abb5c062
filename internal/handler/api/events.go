// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/olegiv/stalkfish-go/internal/logpipe"
	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/pipes"
)

// EventRequest is one host event. Exactly one of Hook and Pipe is set:
// hook events go through the registration table, pipe events are recorded
// as given.
type EventRequest struct {
	Hook      string         `json:"hook"`
	Pipe      string         `json:"pipe"`
	Body      map[string]any `json:"body"`
	Actor     *model.Actor   `json:"actor"`
	IPAddress string         `json:"ip_address"`
	Immediate bool           `json:"immediate"`
}

// Outcome values reported per recorded event.
const (
	OutcomeQueued    = "queued"
	OutcomeDelivered = "delivered"
	OutcomeExcluded  = "excluded"
	OutcomeDisabled  = "disabled"
	OutcomeRetrying  = "retrying"
	OutcomeFailed    = "failed"
)

// EventResult reports what happened to one recorded event.
type EventResult struct {
	Pipe       string `json:"pipe"`
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// validate checks the request shape against the catalog.
func (req EventRequest) validate(catalog *pipes.Catalog) map[string]string {
	errs := make(map[string]string)
	switch {
	case req.Hook == "" && req.Pipe == "":
		errs["hook"] = "Either hook or pipe is required"
	case req.Hook != "" && req.Pipe != "":
		errs["hook"] = "Only one of hook and pipe may be set"
	case req.Pipe != "" && !catalog.Has(req.Pipe):
		errs["pipe"] = "Unknown pipe"
	}
	return errs
}

// CreateEvent handles POST /api/v1/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}
	req.Hook = strings.TrimSpace(req.Hook)
	req.Pipe = strings.TrimSpace(req.Pipe)

	if errs := req.validate(h.catalog); len(errs) > 0 {
		WriteValidationError(w, errs)
		return
	}

	emissions := []pipes.Emission{{Pipe: req.Pipe, Body: req.Body}}
	if req.Hook != "" {
		var err error
		emissions, err = h.hooks.Dispatch(r.Context(), req.Hook, req.Body)
		if errors.Is(err, pipes.ErrUnknownHook) {
			WriteValidationError(w, map[string]string{"hook": "Unknown hook"})
			return
		}
		if err != nil {
			h.logger.Error("hook dispatch failed", "hook", req.Hook, "error", err)
			WriteInternalError(w, "Failed to dispatch hook")
			return
		}
	}

	ctx := logpipe.WithActor(r.Context(), req.Actor)
	ctx = logpipe.WithClientIP(ctx, req.IPAddress)

	results := make([]EventResult, 0, len(emissions))
	for _, em := range emissions {
		if c, ok := em.Body[model.KeyContext].(string); ok {
			h.catalog.AddContexts(em.Pipe, c)
		}
		results = append(results, outcome(em.Pipe, h.events.Pipe(ctx, em.Pipe, em.Body, req.Immediate)))
	}

	WriteAccepted(w, map[string]any{"results": results})
}

func outcome(pipe string, res logpipe.Result) EventResult {
	out := EventResult{Pipe: pipe, StatusCode: res.StatusCode}
	switch {
	case res.Disabled:
		out.Outcome = OutcomeDisabled
	case res.Excluded:
		out.Outcome = OutcomeExcluded
	case res.Retrying:
		out.Outcome = OutcomeRetrying
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
	case res.Err != nil:
		out.Outcome = OutcomeFailed
		out.Error = res.Err.Error()
	case res.Deferred:
		out.Outcome = OutcomeQueued
	case res.OK():
		out.Outcome = OutcomeDelivered
	default:
		out.Outcome = OutcomeFailed
		out.Error = fmt.Sprintf("collector returned status %d", res.StatusCode)
	}
	return out
}

// errorReportRequired lists the fields a host error report must carry.
var errorReportRequired = []string{"exception_class", "message"}

// CreateErrorReport handles POST /api/v1/errors.
func (h *Handler) CreateErrorReport(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(w, r, &payload); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	errs := make(map[string]string)
	for _, field := range errorReportRequired {
		if s, _ := payload[field].(string); strings.TrimSpace(s) == "" {
			errs[field] = "Required"
		}
	}
	if len(errs) > 0 {
		WriteValidationError(w, errs)
		return
	}

	if !h.errors.ReportPayload(r.Context(), payload) {
		WriteAccepted(w, map[string]any{"accepted": false, "reason": "error logging is disabled"})
		return
	}
	WriteAccepted(w, map[string]any{"accepted": true})
}
