package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.HandleFunc("GET /healthz", h.Healthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Pipeline
	mux.Handle("GET /api/v1/stages", chain(http.HandlerFunc(h.ListStages)))
	mux.Handle("GET /api/v1/graph", chain(http.HandlerFunc(h.GetGraph)))

	// Runs
	mux.Handle("GET /api/v1/active", chain(http.HandlerFunc(h.ListActiveRuns)))
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/runs/{id}/instances", chain(http.HandlerFunc(h.ListRunInstances)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
}
