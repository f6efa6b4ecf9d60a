package main

import (
	"os"
	"path/filepath"
	"testing"

	"fold-orchestrator/core/models"
	"fold-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCurrentStateForLedger(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	dir := t.TempDir()
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(dir))
	require.NoError(t, cm.SaveRunning(models.NewRunningSummary(models.MetricPLDDT)))
	assert.Equal(t, models.JobStateInProgress, currentState(&models.Job{Name: "a", OutputDir: dir}, log))
	assert.Equal(t, models.JobStateNotStarted, currentState(&models.Job{Name: "b", OutputDir: filepath.Join(dir, "missing")}, log))
	assert.Zero(t, logs.Len())

	// a regular file where the job directory should be cannot be listed
	file := filepath.Join(t.TempDir(), "not_a_dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Equal(t, models.JobStateNotStarted, currentState(&models.Job{Name: "c", OutputDir: file}, log))

	warnings := logs.FilterMessageSnippet("cannot read job directory").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "c", warnings[0].ContextMap()["job"])
}
