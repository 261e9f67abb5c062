// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the local REST API the CMS host uses to submit
// events and error reports and to manage settings.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/olegiv/stalkfish-go/internal/logpipe"
	"github.com/olegiv/stalkfish-go/internal/pipes"
	"github.com/olegiv/stalkfish-go/internal/settings"
)

// maxBodyBytes caps request bodies. Error reports may carry large
// contexts, so this sits above the default report budget.
const maxBodyBytes = 4 << 20

// EventPipe records activity events.
type EventPipe interface {
	Pipe(ctx context.Context, pipe string, body map[string]any, immediate bool) logpipe.Result
}

// ErrorReporter accepts pre-built error report payloads.
type ErrorReporter interface {
	ReportPayload(ctx context.Context, payload map[string]any) bool
}

// Deps are the collaborators of the API handlers.
type Deps struct {
	Options *settings.Options
	Catalog *pipes.Catalog
	Hooks   *pipes.HookRegistry
	Events  EventPipe
	Errors  ErrorReporter
	Logger  *slog.Logger
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	options *settings.Options
	catalog *pipes.Catalog
	hooks   *pipes.HookRegistry
	events  EventPipe
	errors  ErrorReporter
	logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		options: d.Options,
		catalog: d.Catalog,
		hooks:   d.Hooks,
		events:  d.Events,
		errors:  d.Errors,
		logger:  logger,
	}
}

// Response is the standard API response wrapper.
type Response struct {
	Data any `json:"data,omitempty"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Data: data})
}

// WriteAccepted writes a 202 Accepted JSON response.
func WriteAccepted(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusAccepted, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusUnprocessableEntity, "validation_error", "Validation failed", fieldErrors)
}

// errEmptyBody is returned by decodeJSON for a request without a body.
var errEmptyBody = errors.New("request body is empty")

// decodeJSON decodes a size-limited JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// StatusResponse describes how far the site is set up.
type StatusResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Configured   bool   `json:"configured"`
	Connected    bool   `json:"connected"`
	SiteID       string `json:"site_id,omitempty"`
	RequestType  string `json:"request_type"`
	ActivityLogs bool   `json:"activity_logs"`
	ErrorLogs    bool   `json:"error_logs"`
}

// Status returns the API status and setup state.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, StatusResponse{
		Status:       "ok",
		Version:      "v1",
		Configured:   h.options.APIKey() != "",
		Connected:    h.options.Has(settings.KeyPublicKey),
		SiteID:       h.options.String(settings.KeySiteID, ""),
		RequestType:  string(h.options.RequestType()),
		ActivityLogs: h.options.ActivityLogsEnabled(),
		ErrorLogs:    h.options.ErrorLogsEnabled(),
	})
}
