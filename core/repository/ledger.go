package repository

import (
	"fold-orchestrator/core/models"

	"go.uber.org/zap"
)

// Ledger records job transitions and artifacts in Postgres. Database errors
// are logged and never fail the job.
type Ledger struct {
	jobs      *JobRepository
	artifacts *ArtifactRepository
	events    *EventRepository
	logger    *zap.Logger
}

// NewLedger creates a ledger backed by db
func NewLedger(db *DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		jobs:      NewJobRepository(db),
		artifacts: NewArtifactRepository(db),
		events:    NewEventRepository(db),
		logger:    logger,
	}
}

// Register upserts the job row before a run
func (l *Ledger) Register(job *models.Job, state models.JobState) {
	if err := l.jobs.UpsertJob(job, state); err != nil {
		l.logger.Warn("ledger: failed to register job", zap.String("job", job.Name), zap.Error(err))
	}
}

// RecordTransition implements models.EventRecorder
func (l *Ledger) RecordTransition(job *models.Job, from *models.JobState, to models.JobState, reason string, meta map[string]interface{}) {
	err := l.jobs.UpsertJob(job, to)
	if err == nil {
		err = l.jobs.UpdateJobState(job, from, to, reason, meta)
	}
	if err != nil {
		l.logger.Warn("ledger: failed to record transition",
			zap.String("job", job.Name),
			zap.String("to", string(to)),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// RecordEvent implements models.EventRecorder
func (l *Ledger) RecordEvent(job *models.Job, state models.JobState, reason string, meta map[string]interface{}) {
	err := l.jobs.UpsertJob(job, state)
	if err == nil {
		err = l.jobs.CreateJobEvent(job, state, reason, meta)
	}
	if err != nil {
		l.logger.Warn("ledger: failed to record event",
			zap.String("job", job.Name),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// RecordArtifact implements models.EventRecorder
func (l *Ledger) RecordArtifact(job *models.Job, artifactType models.ArtifactType, uri string, meta map[string]interface{}) {
	if err := l.artifacts.CreateArtifact(job, artifactType, uri, meta); err != nil {
		l.logger.Warn("ledger: failed to record artifact",
			zap.String("job", job.Name),
			zap.String("uri", uri),
			zap.Error(err))
	}
}

var _ models.EventRecorder = (*Ledger)(nil)
