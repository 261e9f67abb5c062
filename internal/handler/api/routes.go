// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the /api/v1 router. adminAuth guards everything except
// the triggers listing.
func (h *Handler) Routes(adminAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/triggers", h.ListTriggers)

	r.Group(func(r chi.Router) {
		r.Use(adminAuth)

		r.Get("/status", h.Status)
		r.Post("/api-key", h.UpdateAPIKey)
		r.Post("/events", h.CreateEvent)
		r.Post("/errors", h.CreateErrorReport)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/exclude-rules", h.GetExcludeRules)
			r.Put("/exclude-rules", h.UpdateExcludeRules)
			r.Put("/request-type", h.UpdateRequestType)
			r.Put("/logs", h.UpdateLogs)
		})
	})

	return r
}
