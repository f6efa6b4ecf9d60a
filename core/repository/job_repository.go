package repository

import (
	"database/sql"

	"fold-orchestrator/core/models"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// UpsertJob registers a job or refreshes its configuration and run ID
func (r *JobRepository) UpsertJob(job *models.Job, state models.JobState) error {
	query := `
		INSERT INTO jobs (name, output_dir, mode, slot_count, relax, state, run_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			output_dir = EXCLUDED.output_dir,
			mode = EXCLUDED.mode,
			slot_count = EXCLUDED.slot_count,
			relax = EXCLUDED.relax,
			run_id = EXCLUDED.run_id,
			updated_at = NOW()
	`

	_, err := r.db.Exec(query,
		job.Name,
		job.OutputDir,
		job.Mode,
		job.SlotCount(),
		job.RelaxPolicy,
		state,
		job.RunID,
	)
	return err
}

// UpdateJobState updates job state atomically with event logging
func (r *JobRepository) UpdateJobState(job *models.Job, from *models.JobState, to models.JobState, reason string, meta map[string]interface{}) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updateQuery := `UPDATE jobs SET state = $1, run_id = $2, updated_at = NOW() WHERE name = $3`
	if _, err := tx.Exec(updateQuery, to, job.RunID, job.Name); err != nil {
		return err
	}

	if err := r.createJobEventTx(tx, job, from, to, reason, meta); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateJobEvent logs an event that leaves the job's state unchanged. The
// state is stored on both sides of the event.
func (r *JobRepository) CreateJobEvent(job *models.Job, state models.JobState, reason string, meta map[string]interface{}) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_events (job_name, run_id, from_state, to_state, reason, meta_json)
		VALUES ($1, $2, $3, $3, $4, $5)
	`

	_, err = r.db.Exec(query, job.Name, job.RunID, state, reason, metaJSON)
	return err
}

func (r *JobRepository) createJobEventTx(tx *sql.Tx, job *models.Job, from *models.JobState, to models.JobState, reason string, meta map[string]interface{}) error {
	query := `
		INSERT INTO job_events (job_name, run_id, from_state, to_state, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var fromState *string
	if from != nil {
		s := string(*from)
		fromState = &s
	}

	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	_, err = tx.Exec(query, job.Name, job.RunID, fromState, to, reason, metaJSON)
	return err
}
