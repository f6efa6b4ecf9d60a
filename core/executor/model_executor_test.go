package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/resume"
	"fold-orchestrator/providers"
	"fold-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePredictor struct {
	calls  []providers.PredictRequest
	failAt int // call number (1-based) that fails; 0 never fails
}

func (p *fakePredictor) Predict(_ context.Context, req providers.PredictRequest) (*providers.PredictResponse, error) {
	p.calls = append(p.calls, req)
	if p.failAt == len(p.calls) {
		return nil, errors.New("out of GPU memory")
	}
	score := 50 + float64(len(p.calls))
	return &providers.PredictResponse{
		Payload:   []byte(fmt.Sprintf(`{"plddt":[%v]}`, score)),
		Structure: models.Structure(fmt.Sprintf("ATOM      1  CA  ALA A   1 %s\nEND\n", req.ModelName)),
	}, nil
}

type recordingRecorder struct {
	transitions []models.JobState
	artifacts   int
}

func (r *recordingRecorder) RecordTransition(_ *models.Job, _ *models.JobState, to models.JobState, _ string, _ map[string]interface{}) {
	r.transitions = append(r.transitions, to)
}

func (r *recordingRecorder) RecordEvent(*models.Job, models.JobState, string, map[string]interface{}) {}

func (r *recordingRecorder) RecordArtifact(*models.Job, models.ArtifactType, string, map[string]interface{}) {
	r.artifacts++
}

func newJob(t *testing.T) *models.Job {
	return &models.Job{
		Name:                "protein",
		OutputDir:           t.TempDir(),
		Mode:                models.ModeMonomer,
		ModelNames:          []string{"model_1", "model_2"},
		PredictionsPerModel: 2,
		NumCycle:            3,
		RandomSeed:          11,
	}
}

func TestRunExecutesSlotsInOrder(t *testing.T) {
	job := newJob(t)
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir))
	predictor := &fakePredictor{}
	recorder := &recordingRecorder{}
	state := resume.NewState(job.Metric())

	require.NoError(t, NewModelExecutor(predictor, recorder, zap.NewNop()).Run(context.Background(), job, cm, state))

	require.Len(t, predictor.calls, 4)
	for i, slot := range job.Slots() {
		assert.Equal(t, slot.ModelName, predictor.calls[i].ModelName)
		assert.Equal(t, job.SlotSeed(slot), predictor.calls[i].Seed)
		assert.Equal(t, 3, predictor.calls[i].NumCycle)
	}
	assert.Equal(t, 4, state.Start)
	assert.Equal(t, []models.JobState{models.JobStateInProgress}, recorder.transitions)
	assert.Equal(t, 4, recorder.artifacts)

	running, err := cm.LoadRunning()
	require.NoError(t, err)
	assert.Len(t, running.Scores, 4)
	assert.Equal(t, 51.0, running.Scores["model_1_pred_0"])
	assert.Len(t, cm.LoadRunningTimings(), 4)
}

func TestRunStartsAfterResumedPrefix(t *testing.T) {
	job := newJob(t)
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir))
	first := &fakePredictor{failAt: 3}
	state := resume.NewState(job.Metric())

	err := NewModelExecutor(first, nil, zap.NewNop()).Run(context.Background(), job, cm, state)
	require.Error(t, err)
	assert.Equal(t, 2, state.Start)

	resumed, err := resume.NewScanner(zap.NewNop()).Scan(job, cm)
	require.NoError(t, err)
	require.Equal(t, 2, resumed.Start)

	second := &fakePredictor{}
	require.NoError(t, NewModelExecutor(second, nil, zap.NewNop()).Run(context.Background(), job, cm, resumed))
	require.Len(t, second.calls, 2)
	assert.Equal(t, "model_2", second.calls[0].ModelName)
	assert.Equal(t, job.SlotSeed(job.Slots()[2]), second.calls[0].Seed)
}

func TestFailureLeavesFailedSlotUncommitted(t *testing.T) {
	job := newJob(t)
	store := storage.NewArtifactStore(job.OutputDir)
	cm := storage.NewCheckpointManager(store)
	predictor := &fakePredictor{failAt: 2}

	err := NewModelExecutor(predictor, nil, zap.NewNop()).Run(context.Background(), job, cm, resume.NewState(job.Metric()))
	require.Error(t, err)
	assert.Len(t, predictor.calls, 2, "no slot runs after a failure")

	assert.True(t, store.Exists(storage.UnrelaxedFile("model_1_pred_0")))
	assert.False(t, store.Exists(storage.UnrelaxedFile("model_1_pred_1")))
	running, err := cm.LoadRunning()
	require.NoError(t, err)
	assert.Equal(t, []string{"model_1_pred_0"}, keys(running.Scores))
}

// A crash while writing the running summary leaves the slot's structure on
// disk but the slot itself unrecorded, so the next scan redoes it.
func TestRunningSummaryIsWrittenLast(t *testing.T) {
	job := newJob(t)
	crashed := false
	store := storage.NewArtifactStore(job.OutputDir, storage.WithRenameFunc(func(oldPath, newPath string) error {
		if filepath.Base(newPath) == storage.RunningSummaryFile {
			crashed = true
			return errors.New("simulated crash")
		}
		return os.Rename(oldPath, newPath)
	}))
	cm := storage.NewCheckpointManager(store)

	err := NewModelExecutor(&fakePredictor{}, nil, zap.NewNop()).Run(context.Background(), job, cm, resume.NewState(job.Metric()))
	require.Error(t, err)
	require.True(t, crashed)

	assert.True(t, store.Exists(storage.UnrelaxedFile("model_1_pred_0")))
	assert.True(t, store.Exists(storage.ResultFile("model_1_pred_0")))
	assert.False(t, store.Exists(storage.RunningSummaryFile))
}

func TestRunRejectsInvalidPrediction(t *testing.T) {
	job := newJob(t)
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir))
	job.Mode = models.ModeMultimer // job now ranks by iptm+ptm, predictor reports plddt

	err := NewModelExecutor(&fakePredictor{}, nil, zap.NewNop()).Run(context.Background(), job, cm, resume.NewState(job.Metric()))
	require.Error(t, err)
	assert.False(t, cm.Store().Exists(storage.UnrelaxedFile("model_1_pred_0")))
}

func TestRunRewritesStaleCheckpoint(t *testing.T) {
	job := newJob(t)
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir))
	state := resume.NewState(job.Metric())
	state.Start = job.SlotCount()
	state.CheckpointStale = true

	predictor := &fakePredictor{}
	require.NoError(t, NewModelExecutor(predictor, nil, zap.NewNop()).Run(context.Background(), job, cm, state))
	assert.Empty(t, predictor.calls)
	assert.False(t, state.CheckpointStale)
	assert.True(t, cm.Store().Exists(storage.RunningSummaryFile))
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
