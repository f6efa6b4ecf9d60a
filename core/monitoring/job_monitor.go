package monitoring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fold-orchestrator/core/models"
	"fold-orchestrator/storage"
)

// ErrJobNotFound is returned for names with no directory under the output root
var ErrJobNotFound = errors.New("job not found")

// JobStatus describes one job directory as seen from its checkpoint files
type JobStatus struct {
	Name      string          `json:"name"`
	Dir       string          `json:"dir"`
	State     models.JobState `json:"state"`
	Metric    models.Metric   `json:"metric,omitempty"`
	Completed int             `json:"completed"`
	Best      string          `json:"best,omitempty"`
	BestScore float64         `json:"best_score,omitempty"`
	Order     []string        `json:"order,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// JobMonitor inspects job directories under an output root without
// modifying them
type JobMonitor struct {
	root string
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(root string) *JobMonitor {
	return &JobMonitor{root: root}
}

// Root returns the monitored output root
func (jm *JobMonitor) Root() string {
	return jm.root
}

// ListJobs returns the status of every job directory, sorted by name
func (jm *JobMonitor) ListJobs() ([]JobStatus, error) {
	entries, err := os.ReadDir(jm.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", jm.root, err)
	}

	var jobs []JobStatus
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobs = append(jobs, jm.inspect(entry.Name()))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}

// GetJob returns the status of a single job directory
func (jm *JobMonitor) GetJob(name string) (JobStatus, error) {
	if !validName(name) {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	info, err := os.Stat(filepath.Join(jm.root, name))
	if err != nil || !info.IsDir() {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return jm.inspect(name), nil
}

// Artifacts lists the files of a job directory
func (jm *JobMonitor) Artifacts(name string) ([]models.JobArtifact, error) {
	if _, err := jm.GetJob(name); err != nil {
		return nil, err
	}
	artifacts, err := jm.store(name).List()
	if err != nil {
		return nil, err
	}
	for i := range artifacts {
		artifacts[i].JobName = name
	}
	return artifacts, nil
}

func (jm *JobMonitor) store(name string) *storage.ArtifactStore {
	return storage.NewArtifactStore(filepath.Join(jm.root, name))
}

func (jm *JobMonitor) inspect(name string) JobStatus {
	store := jm.store(name)
	cm := storage.NewCheckpointManager(store)
	status := JobStatus{Name: name, Dir: store.Dir()}

	state, completed, err := cm.Progress()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.State = state
	status.Completed = completed

	switch state {
	case models.JobStateComplete:
		final, err := cm.LoadFinal()
		if err != nil {
			status.Error = err.Error()
			return status
		}
		status.Metric = final.Metric
		status.Order = final.Order
		if len(final.Order) > 0 {
			status.Best = final.Order[0]
			status.BestScore = final.Scores[status.Best]
		}
	case models.JobStateInProgress:
		running, err := cm.LoadRunning()
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				status.Error = err.Error()
			}
			return status
		}
		status.Metric = running.Metric
		status.Best, status.BestScore = bestOf(running.Scores)
	}
	return status
}

// bestOf returns the highest scoring slot, ties broken by name
func bestOf(scores map[string]float64) (string, float64) {
	var best string
	var bestScore float64
	for name, score := range scores {
		if best == "" || score > bestScore || (score == bestScore && name < best) {
			best, bestScore = name, score
		}
	}
	return best, bestScore
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
