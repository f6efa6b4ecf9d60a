package repository

import (
	"fmt"

	"fold-orchestrator/core/models"
)

// ArtifactRepository handles database operations for job artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves artifacts for a job
func (r *ArtifactRepository) GetJobArtifacts(jobName string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	query := `
		SELECT id, job_name, type, uri, created_at, meta_json
		FROM job_artifacts
		WHERE job_name = $1
	`
	args := []interface{}{jobName}
	argIndex := 2

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, *artifactType)
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.JobArtifact
	for rows.Next() {
		var artifact models.JobArtifact
		var metaJSON string

		err := rows.Scan(
			&artifact.ID,
			&artifact.JobName,
			&artifact.Type,
			&artifact.URI,
			&artifact.CreatedAt,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		artifact.MetaJSON = decodeMeta(metaJSON)
		if slot, ok := artifact.MetaJSON["slot"].(string); ok {
			artifact.SlotName = slot
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(job *models.Job, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_artifacts (job_name, run_id, type, uri, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err = r.db.Exec(query, job.Name, job.RunID, artifactType, uri, metaJSON)
	return err
}
