package monitoring

import (
	"fmt"
	"strings"

	"fold-orchestrator/core/models"
)

// MetricsExporter exports job directory metrics for Prometheus
type MetricsExporter struct {
	monitor *JobMonitor
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(monitor *JobMonitor) *MetricsExporter {
	return &MetricsExporter{monitor: monitor}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func (me *MetricsExporter) GetPrometheusMetrics() (string, error) {
	jobs, err := me.monitor.ListJobs()
	if err != nil {
		return "", err
	}

	var b strings.Builder

	counts := map[models.JobState]int{
		models.JobStateNotStarted: 0,
		models.JobStateInProgress: 0,
		models.JobStateComplete:   0,
	}
	for _, job := range jobs {
		if job.State != "" {
			counts[job.State]++
		}
	}

	b.WriteString("# HELP fold_jobs Number of job directories by state\n")
	b.WriteString("# TYPE fold_jobs gauge\n")
	for _, state := range []models.JobState{models.JobStateNotStarted, models.JobStateInProgress, models.JobStateComplete} {
		fmt.Fprintf(&b, "fold_jobs{state=%q} %d\n", state, counts[state])
	}

	b.WriteString("# HELP fold_job_slots_completed Model slots with a committed score\n")
	b.WriteString("# TYPE fold_job_slots_completed gauge\n")
	for _, job := range jobs {
		fmt.Fprintf(&b, "fold_job_slots_completed{job=%q} %d\n", job.Name, job.Completed)
	}

	b.WriteString("# HELP fold_job_best_score Best ranking score recorded for a job\n")
	b.WriteString("# TYPE fold_job_best_score gauge\n")
	for _, job := range jobs {
		if job.Best == "" {
			continue
		}
		fmt.Fprintf(&b, "fold_job_best_score{job=%q,slot=%q,metric=%q} %g\n",
			job.Name, job.Best, job.Metric, job.BestScore)
	}

	return b.String(), nil
}
