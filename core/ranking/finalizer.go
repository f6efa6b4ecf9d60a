package ranking

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/resume"
	"fold-orchestrator/storage"

	"go.uber.org/zap"
)

// ErrIncompleteScores is returned when finalization is attempted before every
// slot has a score
var ErrIncompleteScores = errors.New("scores do not cover every slot")

// Rank orders slot names by descending score; equal scores keep slot order.
// NaN scores rank last.
func Rank(slots []models.ModelSlot, scores map[string]float64) ([]string, error) {
	if len(scores) != len(slots) {
		return nil, fmt.Errorf("%w: %d scores for %d slots", ErrIncompleteScores, len(scores), len(slots))
	}
	ranked := make([]models.ModelSlot, len(slots))
	copy(ranked, slots)
	for _, slot := range ranked {
		if _, ok := scores[slot.Name]; !ok {
			return nil, fmt.Errorf("%w: %s has no score", ErrIncompleteScores, slot.Name)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := scores[ranked[i].Name], scores[ranked[j].Name]
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			return ranked[i].Index < ranked[j].Index
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case a != b:
			return a > b
		}
		return ranked[i].Index < ranked[j].Index
	})

	order := make([]string, len(ranked))
	for i, slot := range ranked {
		order[i] = slot.Name
	}
	return order, nil
}

// Finalizer publishes the final summary once every slot is accounted for
type Finalizer struct {
	recorder models.EventRecorder
	logger   *zap.Logger
}

// NewFinalizer creates a new ranking finalizer
func NewFinalizer(recorder models.EventRecorder, logger *zap.Logger) *Finalizer {
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	return &Finalizer{recorder: recorder, logger: logger}
}

// Finalize ranks the slots and publishes the final summary, then removes the
// running summary. A job that already has a final summary is returned as is.
func (f *Finalizer) Finalize(job *models.Job, cm *storage.CheckpointManager, state *resume.State) (*models.FinalSummary, error) {
	slots := job.Slots()
	log := f.logger.With(zap.String("job", job.Name))

	existing, err := cm.LoadFinal()
	switch {
	case err == nil:
		if err := resume.ValidateFinal(job, slots, existing); err != nil {
			return nil, err
		}
		if cm.Store().Exists(storage.RunningTimingsFile) {
			log.Info("publishing timings left behind by an earlier finalization")
			timings := cm.LoadRunningTimings()
			for k, v := range cm.LoadTimings() {
				timings[k] = v
			}
			if err := cm.PublishTimings(timings); err != nil {
				log.Warn("failed to publish timings", zap.Error(err))
			}
		}
		if cm.Store().Exists(storage.RunningSummaryFile) {
			log.Info("removing running summary left behind by an earlier finalization")
			if err := cm.RemoveRunning(); err != nil {
				return nil, err
			}
		}
		state.Final = existing
		state.JobState = models.JobStateComplete
		return existing, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", resume.ErrCorruptFinalSummary, err)
	}

	order, err := Rank(slots, state.Scores)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(slots))
	for _, slot := range slots {
		scores[slot.Name] = state.Scores[slot.Name]
	}
	summary := &models.FinalSummary{
		Metric: state.Metric,
		Scores: scores,
		Order:  order,
	}

	if err := cm.PublishFinal(summary); err != nil {
		return nil, err
	}
	if err := cm.RemoveRunning(); err != nil {
		return nil, err
	}
	if err := cm.PublishTimings(state.Timings); err != nil {
		log.Warn("failed to publish timings", zap.Error(err))
	}

	from := state.JobState
	state.Final = summary
	state.JobState = models.JobStateComplete
	f.recorder.RecordTransition(job, &from, models.JobStateComplete, "ranking_finalized", map[string]interface{}{
		"best":   order[0],
		"metric": string(summary.Metric),
		"score":  scores[order[0]],
	})
	f.recorder.RecordArtifact(job, models.ArtifactTypeCheckpoint, cm.Store().Path(storage.FinalSummaryFile), nil)

	log.Info("ranking finalized",
		zap.String("best", order[0]),
		zap.String("metric", string(summary.Metric)),
		zap.Float64("score", scores[order[0]]))
	return summary, nil
}

// PublishRanked writes ranked_<i>.pdb for every rank, preferring the relaxed
// structure of a slot when one exists. Files whose content is unchanged are
// not rewritten.
func (f *Finalizer) PublishRanked(job *models.Job, cm *storage.CheckpointManager, order []string, unrelaxed map[string]models.Structure) error {
	store := cm.Store()
	for rank, name := range order {
		structure, err := store.ReadRelaxed(name)
		if err != nil {
			var ok bool
			structure, ok = unrelaxed[name]
			if !ok {
				return fmt.Errorf("publish rank %d: no structure for %s", rank, name)
			}
		}

		file := storage.RankedFile(rank)
		if current, err := store.ReadFile(file); err == nil && bytes.Equal(current, structure) {
			continue
		}
		if err := store.WriteRanked(rank, structure); err != nil {
			return fmt.Errorf("publish rank %d: %w", rank, err)
		}
		f.recorder.RecordArtifact(job, models.ArtifactTypeRanked, store.Path(file), map[string]interface{}{
			"rank": rank,
			"slot": name,
		})
	}
	return nil
}
