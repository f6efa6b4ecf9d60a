package routes

import (
	"fold-orchestrator/api/rest/handlers"
	"fold-orchestrator/core/monitoring"
	"fold-orchestrator/core/repository"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. db may be nil when no run ledger
// is configured.
func SetupRoutes(r *mux.Router, outputRoot string, db *repository.DB) {
	monitor := monitoring.NewJobMonitor(outputRoot)

	var (
		events    handlers.EventSource
		artifacts handlers.ArtifactSource
	)
	if db != nil {
		events = repository.NewEventRepository(db)
		artifacts = repository.NewArtifactRepository(db)
	}
	jobHandler := handlers.NewJobHandler(monitor, events, artifacts)
	metricsHandler := handlers.NewMetricsHandler(monitoring.NewMetricsExporter(monitor))

	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.HandleFunc("/metrics", metricsHandler.GetMetrics).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{name}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{name}/artifacts", jobHandler.GetJobArtifacts).Methods("GET")
	api.HandleFunc("/jobs/{name}/events", jobHandler.GetJobEvents).Methods("GET")
}
