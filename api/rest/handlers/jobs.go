package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/monitoring"

	"github.com/gorilla/mux"
)

// EventSource lists the ledger events of a job
type EventSource interface {
	GetJobEvents(jobName string, limit int) ([]models.JobEvent, error)
}

// ArtifactSource lists the artifacts the ledger recorded for a job
type ArtifactSource interface {
	GetJobArtifacts(jobName string, artifactType *models.ArtifactType) ([]models.JobArtifact, error)
}

// JobHandler handles job-related HTTP requests. The output root is the
// source of truth; the ledger sources are optional and may be nil.
type JobHandler struct {
	monitor   *monitoring.JobMonitor
	events    EventSource
	artifacts ArtifactSource
}

// NewJobHandler creates a new job handler
func NewJobHandler(monitor *monitoring.JobMonitor, events EventSource, artifacts ArtifactSource) *JobHandler {
	return &JobHandler{
		monitor:   monitor,
		events:    events,
		artifacts: artifacts,
	}
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.monitor.ListJobs()
	if err != nil {
		http.Error(w, "Failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var stateFilter models.JobState
	if stateParam := r.URL.Query().Get("state"); stateParam != "" {
		stateFilter = models.JobState(stateParam)
	}

	items := make([]monitoring.JobStatus, 0, len(jobs))
	for _, job := range jobs {
		if stateFilter != "" && job.State != stateFilter {
			continue
		}
		items = append(items, job)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetJob handles GET /v1/jobs/{name}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	job, err := h.monitor.GetJob(name)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// GetJobArtifacts handles GET /v1/jobs/{name}/artifacts. With a ledger
// configured the response also carries the artifacts recorded by past runs,
// including files that were later overwritten or mirrored away.
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	artifacts, err := h.monitor.Artifacts(name)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	typeFilter := models.ArtifactType(r.URL.Query().Get("type"))

	items := make([]map[string]interface{}, 0, len(artifacts))
	for _, artifact := range artifacts {
		if typeFilter != "" && artifact.Type != typeFilter {
			continue
		}
		item := map[string]interface{}{
			"type":       artifact.Type,
			"uri":        artifact.URI,
			"size":       artifact.Size,
			"created_at": artifact.CreatedAt,
		}
		if artifact.SlotName != "" {
			item["slot"] = artifact.SlotName
		}
		items = append(items, item)
	}

	resp := map[string]interface{}{
		"items": items,
	}

	if h.artifacts != nil {
		var filter *models.ArtifactType
		if typeFilter != "" {
			filter = &typeFilter
		}
		records, err := h.artifacts.GetJobArtifacts(name, filter)
		if err != nil {
			http.Error(w, "Failed to fetch recorded artifacts: "+err.Error(), http.StatusInternalServerError)
			return
		}
		recorded := make([]map[string]interface{}, 0, len(records))
		for _, record := range records {
			item := map[string]interface{}{
				"type":       record.Type,
				"uri":        record.URI,
				"created_at": record.CreatedAt,
			}
			if record.SlotName != "" {
				item["slot"] = record.SlotName
			}
			recorded = append(recorded, item)
		}
		resp["recorded"] = recorded
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetJobEvents handles GET /v1/jobs/{name}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if h.events == nil {
		http.Error(w, "Run ledger not configured", http.StatusNotFound)
		return
	}

	events, err := h.events.GetJobEvents(name, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":       event.At,
			"run_id":   event.RunID,
			"to_state": event.ToState,
			"reason":   event.Reason,
		}
		if event.FromState != nil {
			item["from_state"] = *event.FromState
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, monitoring.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
