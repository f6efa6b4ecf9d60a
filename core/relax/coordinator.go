package relax

import (
	"context"
	"fmt"
	"time"

	"fold-orchestrator/core/models"
	"fold-orchestrator/providers"
	"fold-orchestrator/storage"

	"go.uber.org/zap"
)

// SelectTargets returns the slots a policy relaxes, best first
func SelectTargets(policy models.RelaxPolicy, order []string) []string {
	switch policy {
	case models.RelaxBest:
		if len(order) == 0 {
			return nil
		}
		return order[:1]
	case models.RelaxAll:
		return order
	default:
		return nil
	}
}

// Coordinator relaxes the ranked models selected by the job's policy
type Coordinator struct {
	relaxer  providers.Relaxer
	recorder models.EventRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator creates a new relaxation coordinator
func NewCoordinator(relaxer providers.Relaxer, recorder models.EventRecorder, logger *zap.Logger) *Coordinator {
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	return &Coordinator{
		relaxer:  relaxer,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Relax processes the selected slots in rank order, skipping slots that
// already have a relaxed structure. It returns how many slots it relaxed.
func (c *Coordinator) Relax(
	ctx context.Context,
	job *models.Job,
	cm *storage.CheckpointManager,
	order []string,
	unrelaxed map[string]models.Structure,
) (int, error) {
	store := cm.Store()
	log := c.logger.With(zap.String("job", job.Name), zap.String("policy", string(job.RelaxPolicy)))

	relaxed := 0
	for _, name := range SelectTargets(job.RelaxPolicy, order) {
		if store.HasRelaxed(name) {
			log.Info("relaxed structure exists, skipping", zap.String("slot", name))
			continue
		}

		structure, ok := unrelaxed[name]
		if !ok {
			var err error
			structure, err = store.ReadUnrelaxed(name)
			if err != nil {
				return relaxed, fmt.Errorf("relax %s: %w", name, err)
			}
		}

		log.Info(fmt.Sprintf("Relaxing model %s", name))
		started := c.now()
		resp, err := c.relaxer.Relax(ctx, providers.RelaxRequest{
			JobName:   job.Name,
			SlotName:  name,
			Structure: structure,
		})
		if err != nil {
			return relaxed, fmt.Errorf("relax %s: %w", name, err)
		}
		if err := storage.ValidatePDB(resp.Structure); err != nil {
			return relaxed, fmt.Errorf("relax %s: %w", name, err)
		}
		elapsed := c.now().Sub(started).Seconds()

		if err := store.WriteRelaxed(name, resp.Structure); err != nil {
			return relaxed, fmt.Errorf("relax %s: %w", name, err)
		}
		if err := cm.MergeRelaxMetrics(name, resp.Metrics); err != nil {
			log.Warn("failed to record relax metrics", zap.String("slot", name), zap.Error(err))
		}
		if err := cm.MergeTimings(map[string]float64{"relax_" + name: elapsed}); err != nil {
			log.Warn("failed to record relax timing", zap.String("slot", name), zap.Error(err))
		}
		c.recorder.RecordArtifact(job, models.ArtifactTypeRelaxed, store.Path(storage.RelaxedFile(name)), map[string]interface{}{
			"slot": name,
		})
		relaxed++
	}
	return relaxed, nil
}
