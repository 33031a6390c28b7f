// Package server wires HTTP handlers into a chi router for the relay.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes returns the HTTP handler with all application routes: health
// checks, the WebSocket endpoint, the test page and, when a gatherer is
// configured, Prometheus metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(BearerToken)

	r.Get("/", HealthHandler)
	r.Get("/healthz", s.StatsHandler)
	r.HandleFunc("/ws", s.WebSocketHandler)
	r.Get("/test", TestPageHandler)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
