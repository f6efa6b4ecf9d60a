package executor

import (
	"context"
	"fmt"
	"time"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/resume"
	"fold-orchestrator/providers"
	"fold-orchestrator/storage"

	"go.uber.org/zap"
)

// ModelExecutor runs the model slots that a resume scan left undone
type ModelExecutor struct {
	predictor providers.Predictor
	recorder  models.EventRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewModelExecutor creates a new model executor
func NewModelExecutor(predictor providers.Predictor, recorder models.EventRecorder, logger *zap.Logger) *ModelExecutor {
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	return &ModelExecutor{
		predictor: predictor,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes slots state.Start..N-1 in index order and commits each one
// before starting the next. A predictor failure aborts the run; the slots
// committed so far stay resumable.
func (e *ModelExecutor) Run(ctx context.Context, job *models.Job, cm *storage.CheckpointManager, state *resume.State) error {
	slots := job.Slots()
	log := e.logger.With(zap.String("job", job.Name), zap.String("run_id", job.RunID))

	if state.CheckpointStale {
		if err := cm.SaveRunning(state.RunningSummary()); err != nil {
			return err
		}
		state.CheckpointStale = false
	}

	if state.Start < len(slots) && state.JobState == models.JobStateNotStarted {
		from := models.JobStateNotStarted
		e.recorder.RecordTransition(job, &from, models.JobStateInProgress, "prediction_started", nil)
		state.JobState = models.JobStateInProgress
	}

	for _, slot := range slots[state.Start:] {
		log.Info(fmt.Sprintf("Running model %s", slot.Name),
			zap.Int("slot", slot.Index), zap.Int("total", len(slots)))

		started := e.now()
		result, err := e.predict(ctx, job, slot)
		if err != nil {
			return err
		}
		elapsed := e.now().Sub(started).Seconds()

		if err := e.commit(job, cm, state, result, elapsed); err != nil {
			return err
		}
		state.Start = slot.Index + 1

		log.Info("model finished",
			zap.String("slot", slot.Name),
			zap.String("metric", string(result.Metric)),
			zap.Float64("score", result.Score),
			zap.Float64("seconds", elapsed))
	}
	return nil
}

// predict invokes the prediction service and derives the slot's score
func (e *ModelExecutor) predict(ctx context.Context, job *models.Job, slot models.ModelSlot) (*models.ModelResult, error) {
	resp, err := e.predictor.Predict(ctx, providers.PredictRequest{
		JobName:   job.Name,
		Mode:      job.Mode,
		Features:  job.Features,
		DataDir:   job.DataDir,
		ModelName: slot.ModelName,
		NumCycle:  job.NumCycle,
		Seed:      job.SlotSeed(slot),
	})
	if err != nil {
		return nil, fmt.Errorf("run model %s: %w", slot.Name, err)
	}

	metric, score, err := models.ScoreFromPayload(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("run model %s: %w", slot.Name, err)
	}
	if metric != job.Metric() {
		return nil, fmt.Errorf("run model %s: predictor reported %s, job ranks by %s", slot.Name, metric, job.Metric())
	}
	if err := storage.ValidatePDB(resp.Structure); err != nil {
		return nil, fmt.Errorf("run model %s: %w", slot.Name, err)
	}

	return &models.ModelResult{
		Slot:      slot,
		Metric:    metric,
		Score:     score,
		Structure: resp.Structure,
		Payload:   resp.Payload,
	}, nil
}

// commit persists a slot. The running summary is written last so a crash
// before it leaves the slot looking undone.
func (e *ModelExecutor) commit(
	job *models.Job,
	cm *storage.CheckpointManager,
	state *resume.State,
	result *models.ModelResult,
	elapsed float64,
) error {
	store := cm.Store()
	name := result.Slot.Name

	if err := store.WriteUnrelaxed(name, result.Structure); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	if err := store.WritePayload(name, result.Payload); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	state.Timings[resume.TimingKey(name)] = elapsed
	if err := cm.SaveRunningTimings(state.Timings); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	state.Record(result)
	if err := cm.SaveRunning(state.RunningSummary()); err != nil {
		delete(state.Scores, name)
		return fmt.Errorf("commit %s: %w", name, err)
	}

	e.recorder.RecordArtifact(job, models.ArtifactTypeUnrelaxed, store.Path(storage.UnrelaxedFile(name)), map[string]interface{}{
		"slot":   name,
		"metric": string(result.Metric),
		"score":  result.Score,
	})
	return nil
}
