package models

import "time"

// JobEvent represents a state transition event for a job
type JobEvent struct {
	ID        int64
	JobName   string
	RunID     string
	At        time.Time
	FromState *JobState
	ToState   JobState
	Reason    string
	MetaJSON  map[string]interface{} // Additional metadata
}

// ArtifactType represents the type of a file in a job directory
type ArtifactType string

const (
	ArtifactTypeUnrelaxed    ArtifactType = "unrelaxed"
	ArtifactTypeResult       ArtifactType = "result"
	ArtifactTypeRelaxed      ArtifactType = "relaxed"
	ArtifactTypeRanked       ArtifactType = "ranked"
	ArtifactTypeCheckpoint   ArtifactType = "checkpoint"
	ArtifactTypeTimings      ArtifactType = "timings"
	ArtifactTypeRelaxMetrics ArtifactType = "relax_metrics"
	ArtifactTypeOther        ArtifactType = "other"
)

// JobArtifact represents a file produced for a job
type JobArtifact struct {
	ID        int64
	JobName   string
	Type      ArtifactType
	URI       string
	SlotName  string
	Size      int64
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}

// EventRecorder receives job state transitions, events that leave the state
// unchanged, and committed artifacts. Implementations must not fail the job;
// errors are theirs to report.
type EventRecorder interface {
	RecordTransition(job *Job, from *JobState, to JobState, reason string, meta map[string]interface{})
	RecordEvent(job *Job, state JobState, reason string, meta map[string]interface{})
	RecordArtifact(job *Job, artifactType ArtifactType, uri string, meta map[string]interface{})
}

// NopRecorder discards all events
type NopRecorder struct{}

// RecordTransition implements EventRecorder
func (NopRecorder) RecordTransition(*Job, *JobState, JobState, string, map[string]interface{}) {}

// RecordEvent implements EventRecorder
func (NopRecorder) RecordEvent(*Job, JobState, string, map[string]interface{}) {}

// RecordArtifact implements EventRecorder
func (NopRecorder) RecordArtifact(*Job, ArtifactType, string, map[string]interface{}) {}
