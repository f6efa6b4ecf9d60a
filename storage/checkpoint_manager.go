package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"fold-orchestrator/core/models"
)

const (
	// RunningSummaryFile holds the scores of slots completed so far
	RunningSummaryFile = "ranking_debug_temp.json"
	// FinalSummaryFile holds all scores plus the rank order; its presence marks completion
	FinalSummaryFile = "ranking_debug.json"
	// RunningTimingsFile accumulates per-slot timings while the job is in progress
	RunningTimingsFile = "timings_temp.json"
	// TimingsFile is the published timings document
	TimingsFile = "timings.json"
	// RelaxMetricsFile records relaxer statistics per slot
	RelaxMetricsFile = "relax_metrics.json"
)

// CheckpointManager manages the checkpoint documents of a job directory
type CheckpointManager struct {
	store *ArtifactStore
}

// NewCheckpointManager creates a new checkpoint manager
func NewCheckpointManager(store *ArtifactStore) *CheckpointManager {
	return &CheckpointManager{
		store: store,
	}
}

// Store returns the underlying artifact store
func (cm *CheckpointManager) Store() *ArtifactStore {
	return cm.store
}

// State derives the job state from which checkpoint files are present
func (cm *CheckpointManager) State() (models.JobState, error) {
	if cm.store.Exists(FinalSummaryFile) {
		return models.JobStateComplete, nil
	}
	if cm.store.Exists(RunningSummaryFile) {
		return models.JobStateInProgress, nil
	}

	entries, err := os.ReadDir(cm.store.Dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.JobStateNotStarted, nil
		}
		return "", fmt.Errorf("inspect %s: %w", cm.store.Dir(), err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), unrelaxedPrefix) && strings.HasSuffix(entry.Name(), structureExt) {
			return models.JobStateInProgress, nil
		}
	}
	return models.JobStateNotStarted, nil
}

// LoadRunning reads the running summary or returns ErrNotFound
func (cm *CheckpointManager) LoadRunning() (*models.RunningSummary, error) {
	data, err := cm.store.ReadFile(RunningSummaryFile)
	if err != nil {
		return nil, err
	}
	var summary models.RunningSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RunningSummaryFile, err)
	}
	return &summary, nil
}

// SaveRunning replaces the running summary
func (cm *CheckpointManager) SaveRunning(summary *models.RunningSummary) error {
	if err := cm.store.writeJSONAtomic(cm.store.Path(RunningSummaryFile), summary); err != nil {
		return fmt.Errorf("save %s: %w", RunningSummaryFile, err)
	}
	return nil
}

// RemoveRunning deletes the running summary
func (cm *CheckpointManager) RemoveRunning() error {
	return cm.store.Remove(RunningSummaryFile)
}

// LoadFinal reads the final summary or returns ErrNotFound
func (cm *CheckpointManager) LoadFinal() (*models.FinalSummary, error) {
	data, err := cm.store.ReadFile(FinalSummaryFile)
	if err != nil {
		return nil, err
	}
	var summary models.FinalSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FinalSummaryFile, err)
	}
	return &summary, nil
}

// PublishFinal writes the final summary to a temporary path and renames it
// over the canonical one. The running summary is left untouched.
func (cm *CheckpointManager) PublishFinal(summary *models.FinalSummary) error {
	if err := cm.store.writeJSONAtomic(cm.store.Path(FinalSummaryFile), summary); err != nil {
		return fmt.Errorf("publish %s: %w", FinalSummaryFile, err)
	}
	return nil
}

// LoadRunningTimings reads timings accumulated by an unfinished run.
// A missing or unreadable document yields an empty map.
func (cm *CheckpointManager) LoadRunningTimings() map[string]float64 {
	return cm.loadTimings(RunningTimingsFile)
}

// LoadTimings reads the published timings document
func (cm *CheckpointManager) LoadTimings() map[string]float64 {
	return cm.loadTimings(TimingsFile)
}

func (cm *CheckpointManager) loadTimings(name string) map[string]float64 {
	timings := make(map[string]float64)
	data, err := cm.store.ReadFile(name)
	if err != nil {
		return timings
	}
	if err := json.Unmarshal(data, &timings); err != nil {
		return make(map[string]float64)
	}
	return timings
}

// SaveRunningTimings replaces the in-progress timings document
func (cm *CheckpointManager) SaveRunningTimings(timings map[string]float64) error {
	if err := cm.store.writeJSONAtomic(cm.store.Path(RunningTimingsFile), timings); err != nil {
		return fmt.Errorf("save %s: %w", RunningTimingsFile, err)
	}
	return nil
}

// PublishTimings writes the final timings document and drops the running one
func (cm *CheckpointManager) PublishTimings(timings map[string]float64) error {
	if err := cm.store.writeJSONAtomic(cm.store.Path(TimingsFile), timings); err != nil {
		return fmt.Errorf("publish %s: %w", TimingsFile, err)
	}
	return cm.store.Remove(RunningTimingsFile)
}

// MergeTimings adds entries to the published timings document
func (cm *CheckpointManager) MergeTimings(updates map[string]float64) error {
	timings := cm.LoadTimings()
	for k, v := range updates {
		timings[k] = v
	}
	if err := cm.store.writeJSONAtomic(cm.store.Path(TimingsFile), timings); err != nil {
		return fmt.Errorf("merge %s: %w", TimingsFile, err)
	}
	return nil
}

// MergeRelaxMetrics records the relaxer statistics of one slot
func (cm *CheckpointManager) MergeRelaxMetrics(slotName string, metrics map[string]interface{}) error {
	all := make(map[string]map[string]interface{})
	if data, err := cm.store.ReadFile(RelaxMetricsFile); err == nil {
		if err := json.Unmarshal(data, &all); err != nil {
			all = make(map[string]map[string]interface{})
		}
	}
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	all[slotName] = metrics
	if err := cm.store.writeJSONAtomic(cm.store.Path(RelaxMetricsFile), all); err != nil {
		return fmt.Errorf("merge %s: %w", RelaxMetricsFile, err)
	}
	return nil
}

// Progress reports the job state and the number of scored slots recorded in
// the newest summary. Unreadable summaries count as zero.
func (cm *CheckpointManager) Progress() (models.JobState, int, error) {
	state, err := cm.State()
	if err != nil {
		return "", 0, err
	}
	switch state {
	case models.JobStateComplete:
		if final, err := cm.LoadFinal(); err == nil {
			return state, len(final.Scores), nil
		}
	case models.JobStateInProgress:
		if running, err := cm.LoadRunning(); err == nil {
			return state, len(running.Scores), nil
		}
	}
	return state, 0, nil
}
