package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) RegisterRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	// System endpoints
	mux.HandleFunc("/health", h.HandleHealthCheck)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API endpoints
	mux.HandleFunc("/api/vfs/{op}", h.HandleVFS)
	mux.HandleFunc("/api/procs", h.HandleProcs)
}
