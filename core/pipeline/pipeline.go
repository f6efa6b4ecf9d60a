package pipeline

import (
	"context"
	"fmt"

	"fold-orchestrator/core/executor"
	"fold-orchestrator/core/models"
	"fold-orchestrator/core/ranking"
	"fold-orchestrator/core/relax"
	"fold-orchestrator/core/resume"
	"fold-orchestrator/providers"
	"fold-orchestrator/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mirror copies published job files to remote storage
type Mirror interface {
	Mirror(ctx context.Context, job *models.Job, files []string) error
}

// Outcome summarizes one pass over a job directory
type Outcome struct {
	JobName   string
	RunID     string
	Resumed   int // Slots recovered from disk
	Predicted int // Slots predicted in this pass
	Relaxed   int // Slots relaxed in this pass
	Final     *models.FinalSummary
}

// Pipeline drives a job through scan, prediction, ranking and relaxation
type Pipeline struct {
	scanner   *resume.Scanner
	executor  *executor.ModelExecutor
	finalizer *ranking.Finalizer
	relaxer   *relax.Coordinator
	mirror    Mirror
	recorder  models.EventRecorder
	logger    *zap.Logger
	storeOpts []storage.Option
}

// Options carries the collaborators of a pipeline. Recorder and Mirror are optional.
type Options struct {
	Predictor    providers.Predictor
	Relaxer      providers.Relaxer
	Recorder     models.EventRecorder
	Mirror       Mirror
	Logger       *zap.Logger
	StoreOptions []storage.Option
}

// New creates a new pipeline
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	return &Pipeline{
		scanner:   resume.NewScanner(logger),
		executor:  executor.NewModelExecutor(opts.Predictor, recorder, logger),
		finalizer: ranking.NewFinalizer(recorder, logger),
		relaxer:   relax.NewCoordinator(opts.Relaxer, recorder, logger),
		mirror:    opts.Mirror,
		recorder:  recorder,
		logger:    logger,
		storeOpts: opts.StoreOptions,
	}
}

// Open returns the checkpoint manager of a job directory
func (p *Pipeline) Open(job *models.Job) *storage.CheckpointManager {
	return storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir, p.storeOpts...))
}

// Run processes one job directory to completion. Only work missing from
// disk is executed; an interrupted run is resumed by calling Run again.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) (*Outcome, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.RunID == "" {
		job.RunID = uuid.New().String()
	}
	log := p.logger.With(zap.String("job", job.Name), zap.String("run_id", job.RunID))

	cm := p.Open(job)
	if err := cm.Store().Ensure(); err != nil {
		return nil, err
	}

	state, err := p.scanner.Scan(job, cm)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", job.Name, err)
	}
	outcome := &Outcome{
		JobName: job.Name,
		RunID:   job.RunID,
		Resumed: state.Start,
	}

	if state.Start < job.SlotCount() {
		if err := p.executor.Run(ctx, job, cm, state); err != nil {
			p.recorder.RecordEvent(job, state.JobState, "prediction_failed", map[string]interface{}{
				"error":     err.Error(),
				"completed": state.Start,
			})
			return outcome, fmt.Errorf("job %s: %w", job.Name, err)
		}
		outcome.Predicted = job.SlotCount() - outcome.Resumed
	}

	final, err := p.finalizer.Finalize(job, cm, state)
	if err != nil {
		return outcome, fmt.Errorf("finalize %s: %w", job.Name, err)
	}
	outcome.Final = final

	relaxed, err := p.relaxer.Relax(ctx, job, cm, final.Order, state.Structures)
	outcome.Relaxed = relaxed
	if err != nil {
		return outcome, fmt.Errorf("job %s: %w", job.Name, err)
	}

	if err := p.finalizer.PublishRanked(job, cm, final.Order, state.Structures); err != nil {
		return outcome, fmt.Errorf("job %s: %w", job.Name, err)
	}

	if p.mirror != nil {
		if err := p.mirror.Mirror(ctx, job, publishedFiles(cm, len(final.Order))); err != nil {
			log.Warn("failed to mirror job artifacts", zap.Error(err))
		}
	}

	log.Info("job complete",
		zap.Int("resumed", outcome.Resumed),
		zap.Int("predicted", outcome.Predicted),
		zap.Int("relaxed", outcome.Relaxed),
		zap.String("best", final.Order[0]))
	return outcome, nil
}

// publishedFiles lists the files of a finished job that leave the machine
func publishedFiles(cm *storage.CheckpointManager, ranks int) []string {
	store := cm.Store()
	files := []string{store.Path(storage.FinalSummaryFile)}
	for _, name := range []string{storage.TimingsFile, storage.RelaxMetricsFile} {
		if store.Exists(name) {
			files = append(files, store.Path(name))
		}
	}
	for rank := 0; rank < ranks; rank++ {
		files = append(files, store.Path(storage.RankedFile(rank)))
	}
	return files
}
