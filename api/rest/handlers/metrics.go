package handlers

import (
	"net/http"

	"fold-orchestrator/core/monitoring"
)

// MetricsHandler serves Prometheus metrics
type MetricsHandler struct {
	exporter *monitoring.MetricsExporter
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(exporter *monitoring.MetricsExporter) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := h.exporter.GetPrometheusMetrics()
	if err != nil {
		http.Error(w, "Failed to collect metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(body))
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
