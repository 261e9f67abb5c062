// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
)

// assertJSONResponse validates common JSON response properties.
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantSuccess bool) map[string]any {
	t.Helper()

	if w.Code != wantStatus {
		t.Errorf("status code = %d, want %d", w.Code, wantStatus)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if success, ok := resp["success"].(bool); !ok || success != wantSuccess {
		t.Errorf("success = %v, want %v", resp["success"], wantSuccess)
	}

	return resp
}

func TestWriteJSONError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
	}{
		{"bad request", http.StatusBadRequest, "Invalid input"},
		{"internal error", http.StatusInternalServerError, "Failed to store credentials"},
		{"empty message", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSONError(w, tt.statusCode, tt.message)

			resp := assertJSONResponse(t, w, tt.statusCode, false)

			if errMsg, ok := resp["error"].(string); !ok || errMsg != tt.message {
				t.Errorf("error = %q, want %q", resp["error"], tt.message)
			}
		})
	}
}

func TestWriteJSONSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONSuccess(w, map[string]any{"site_id": "9"})

	resp := assertJSONResponse(t, w, http.StatusOK, true)
	if resp["site_id"] != "9" {
		t.Errorf("site_id = %v, want 9", resp["site_id"])
	}

	w = httptest.NewRecorder()
	writeJSONSuccess(w, nil)
	assertJSONResponse(t, w, http.StatusOK, true)
}

func TestWriteJSONValue(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONValue(w, http.StatusNotAcceptable, "Uninitialized")

	if w.Code != http.StatusNotAcceptable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotAcceptable)
	}
	if body := w.Body.String(); body != "\"Uninitialized\"\n" {
		t.Errorf("body = %q", body)
	}
}
