package repository

import (
	"database/sql"

	"fold-orchestrator/core/models"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetJobEvents retrieves the latest events of a job
func (r *EventRepository) GetJobEvents(jobName string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_name, COALESCE(run_id, ''), at, from_state, to_state, reason, meta_json
		FROM job_events
		WHERE job_name = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, jobName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var fromState sql.NullString
		var metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.JobName,
			&event.RunID,
			&event.At,
			&fromState,
			&event.ToState,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if fromState.Valid {
			state := models.JobState(fromState.String)
			event.FromState = &state
		}
		event.MetaJSON = decodeMeta(metaJSON)

		events = append(events, event)
	}

	return events, rows.Err()
}
