package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Canonical device registry
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/runs", s.handleListDeviceRuns)
			})
		})

		// Registered sources and their sync surface
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Route("/{name}", func(r chi.Router) {
				r.Post("/sync", s.handleSyncSource)
				r.Get("/sync/status", s.handleSyncStatus)
				r.Get("/sync/history", s.handleSyncHistory)
			})
		})

		// Fleet-wide sync
		r.Post("/sync", s.handleSyncAll)
	})

	return r
}

// healthCheckTimeout bounds the store pings inside the health handler.
const healthCheckTimeout = 3 * time.Second

// handleHealth returns the server health status including store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	stores := "ok"
	if s.stores != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.stores.HealthCheck(ctx); err != nil {
			status = "degraded"
			stores = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"stores":  stores,
		"version": s.version,
	})
}
