package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/monitoring"
	"fold-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	artifacts []models.JobArtifact
	events    []models.JobEvent
	filter    *models.ArtifactType
	err       error
}

func (f *fakeLedger) GetJobArtifacts(jobName string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	f.filter = artifactType
	if f.err != nil {
		return nil, f.err
	}
	var out []models.JobArtifact
	for _, a := range f.artifacts {
		if a.JobName == jobName && (artifactType == nil || a.Type == *artifactType) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetJobEvents(jobName string, limit int) ([]models.JobEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newHandlerRouter(t *testing.T, ledger *fakeLedger) *mux.Router {
	t.Helper()
	root := t.TempDir()
	store := storage.NewArtifactStore(filepath.Join(root, "complex"))
	require.NoError(t, store.WriteUnrelaxed("model_1_pred_0", models.Structure("ATOM  1\n")))
	require.NoError(t, store.WriteRanked(0, models.Structure("ATOM  1\n")))

	var h *JobHandler
	if ledger == nil {
		h = NewJobHandler(monitoring.NewJobMonitor(root), nil, nil)
	} else {
		h = NewJobHandler(monitoring.NewJobMonitor(root), ledger, ledger)
	}
	r := mux.NewRouter()
	r.HandleFunc("/v1/jobs/{name}/artifacts", h.GetJobArtifacts)
	r.HandleFunc("/v1/jobs/{name}/events", h.GetJobEvents)
	return r
}

func serve(r http.Handler, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestArtifactsIncludeLedgerRecords(t *testing.T) {
	ledger := &fakeLedger{artifacts: []models.JobArtifact{
		{JobName: "complex", Type: models.ArtifactTypeRelaxed, URI: "/old/relaxed_model_1_pred_0.pdb", SlotName: "model_1_pred_0", CreatedAt: time.Now()},
		{JobName: "complex", Type: models.ArtifactTypeRanked, URI: "/old/ranked_0.pdb", CreatedAt: time.Now()},
		{JobName: "other", Type: models.ArtifactTypeRanked, URI: "/elsewhere/ranked_0.pdb"},
	}}
	r := newHandlerRouter(t, ledger)

	rec := serve(r, "/v1/jobs/complex/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items    []map[string]interface{} `json:"items"`
		Recorded []map[string]interface{} `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	require.Len(t, resp.Recorded, 2)
	assert.Equal(t, "/old/relaxed_model_1_pred_0.pdb", resp.Recorded[0]["uri"])
	assert.Equal(t, "model_1_pred_0", resp.Recorded[0]["slot"])
	assert.Nil(t, ledger.filter)

	rec = serve(r, "/v1/jobs/complex/artifacts?type=ranked")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, ledger.filter)
	assert.Equal(t, models.ArtifactTypeRanked, *ledger.filter)
	require.Len(t, resp.Recorded, 1)
	assert.Equal(t, "/old/ranked_0.pdb", resp.Recorded[0]["uri"])
}

func TestArtifactsWithoutLedger(t *testing.T) {
	rec := serve(newHandlerRouter(t, nil), "/v1/jobs/complex/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "items")
	assert.NotContains(t, resp, "recorded")
}

func TestLedgerFailuresAreServerErrors(t *testing.T) {
	r := newHandlerRouter(t, &fakeLedger{err: errors.New("connection refused")})

	assert.Equal(t, http.StatusInternalServerError, serve(r, "/v1/jobs/complex/artifacts").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(r, "/v1/jobs/complex/events").Code)
}

func TestEvents(t *testing.T) {
	from := models.JobStateNotStarted
	ledger := &fakeLedger{events: []models.JobEvent{
		{JobName: "complex", RunID: "r1", FromState: &from, ToState: models.JobStateInProgress, Reason: "prediction_started"},
		{JobName: "complex", RunID: "r1", ToState: models.JobStateNotStarted, Reason: "registered"},
	}}

	rec := serve(newHandlerRouter(t, ledger), "/v1/jobs/complex/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "not_started", resp.Items[0]["from_state"])
	assert.Equal(t, "prediction_started", resp.Items[0]["reason"])
	assert.NotContains(t, resp.Items[1], "from_state")
}
