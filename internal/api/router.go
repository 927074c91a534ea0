// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/backlogarr/internal/middleware"
)

// NewRouter assembles the full route tree.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Liveness and metrics stay outside the rate limit so probes and
	// scrapers are never throttled.
	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.cfg.Server.RateLimitReqs, h.cfg.Server.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", h.Health)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", h.ListInstances)
			r.Post("/", h.CreateInstance)
			r.Get("/{id}", h.GetInstance)
			r.Put("/{id}", h.UpdateInstance)
			r.Delete("/{id}", h.DeleteInstance)
			r.Post("/{id}/test", h.TestInstance)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", h.ListQueues)
			r.Post("/", h.CreateQueue)
			r.Get("/{id}", h.GetQueue)
			r.Put("/{id}", h.UpdateQueue)
			r.Delete("/{id}", h.DeleteQueue)
			r.Get("/{id}/stats", h.QueueStats)

			r.Post("/{id}/schedule", h.ScheduleQueue)
			r.Post("/{id}/unschedule", h.UnscheduleQueue)
			r.Post("/{id}/pause", h.PauseQueue)
			r.Post("/{id}/resume", h.ResumeQueue)
			r.Post("/{id}/execute", h.ExecuteQueue)
		})

		r.Get("/scheduler/status", h.SchedulerStatus)

		r.Get("/history", h.ListHistory)
		r.Route("/stats", func(r chi.Router) {
			r.Get("/success-rate", h.SuccessRate)
			r.Get("/trend", h.Trend)
		})
	})

	return r
}
