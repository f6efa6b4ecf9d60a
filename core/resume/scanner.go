package resume

import (
	"errors"
	"fmt"
	"math"

	"fold-orchestrator/core/models"
	"fold-orchestrator/storage"

	"go.uber.org/zap"
)

// ErrCorruptFinalSummary is returned when a final summary exists but cannot be
// trusted. It is never repaired automatically.
var ErrCorruptFinalSummary = errors.New("final summary is corrupt")

// scoreTolerance bounds the difference between a checkpointed score and the
// score recomputed from the result payload
const scoreTolerance = 1e-6

// TimingKey returns the timings entry of a slot's prediction
func TimingKey(slotName string) string {
	return "predict_and_compile_" + slotName
}

// State is the in-memory picture of a job directory
type State struct {
	JobState   models.JobState
	Metric     models.Metric
	Start      int // Slots with index < Start are materialized on disk
	Scores     map[string]float64
	Structures map[string]models.Structure
	Payloads   map[string][]byte
	Timings    map[string]float64
	Final      *models.FinalSummary

	// CheckpointStale is set when the running summary on disk does not
	// describe exactly the recovered prefix and must be rewritten.
	CheckpointStale bool
}

// NewState creates an empty state for a metric
func NewState(metric models.Metric) *State {
	return &State{
		JobState:   models.JobStateNotStarted,
		Metric:     metric,
		Scores:     make(map[string]float64),
		Structures: make(map[string]models.Structure),
		Payloads:   make(map[string][]byte),
		Timings:    make(map[string]float64),
	}
}

// Record adds a committed slot result
func (s *State) Record(result *models.ModelResult) {
	s.Scores[result.Slot.Name] = result.Score
	s.Structures[result.Slot.Name] = result.Structure
	s.Payloads[result.Slot.Name] = result.Payload
}

// RunningSummary returns the running checkpoint matching the recorded scores
func (s *State) RunningSummary() *models.RunningSummary {
	summary := models.NewRunningSummary(s.Metric)
	for name, score := range s.Scores {
		summary.Scores[name] = score
	}
	return summary
}

// Scanner reconstructs job state from the artifacts of a previous run
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a new resume scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan inspects the job directory and reports what is already done.
//
// A final summary means the job is complete; all slots are restored from it.
// Otherwise slots are checked in index order and the scan stops at the first
// slot that is missing or unreadable. When a running summary exists it is
// the commit record: a slot whose files exist but that the summary does not
// list is treated as not done.
func (s *Scanner) Scan(job *models.Job, cm *storage.CheckpointManager) (*State, error) {
	slots := job.Slots()
	state := NewState(job.Metric())
	log := s.logger.With(zap.String("job", job.Name))

	final, err := cm.LoadFinal()
	switch {
	case err == nil:
		return s.restoreFinal(job, cm, slots, final, state)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", ErrCorruptFinalSummary, err)
	}

	running, err := cm.LoadRunning()
	switch {
	case err == nil:
		if running.Metric != job.Metric() {
			log.Warn("running summary metric does not match job, ignoring it",
				zap.String("found", string(running.Metric)),
				zap.String("expected", string(job.Metric())))
			running = nil
			state.CheckpointStale = true
		}
	case errors.Is(err, storage.ErrNotFound):
		running = nil
	default:
		log.Warn("running summary unreadable, rebuilding it from artifacts", zap.Error(err))
		running = nil
		state.CheckpointStale = true
	}

	store := cm.Store()
	for _, slot := range slots {
		result, reason := s.loadSlot(job, store, slot, running)
		if result == nil {
			log.Debug("slot not resumable", zap.String("slot", slot.Name), zap.String("reason", reason))
			break
		}
		state.Record(result)
	}
	state.Start = len(state.Scores)

	for _, slot := range slots[state.Start:] {
		if store.Exists(storage.UnrelaxedFile(slot.Name)) {
			log.Warn("ignoring results found after the first missing slot",
				zap.String("slot", slot.Name), zap.Int("start", state.Start))
			break
		}
	}

	if running != nil && len(running.Scores) != state.Start {
		state.CheckpointStale = true
	}
	if running == nil && state.Start > 0 {
		state.CheckpointStale = true
	}

	timings := cm.LoadRunningTimings()
	for name := range state.Scores {
		if t, ok := timings[TimingKey(name)]; ok {
			state.Timings[TimingKey(name)] = t
		}
	}

	if running != nil || state.Start > 0 {
		state.JobState = models.JobStateInProgress
	}
	if state.Start > 0 {
		log.Info("Found existing results, continuing from there",
			zap.Int("completed", state.Start), zap.Int("total", len(slots)))
	}
	return state, nil
}

// loadSlot loads one slot's artifacts; a nil result comes with the reason
func (s *Scanner) loadSlot(
	job *models.Job,
	store *storage.ArtifactStore,
	slot models.ModelSlot,
	running *models.RunningSummary,
) (*models.ModelResult, string) {
	payload, err := store.ReadPayload(slot.Name)
	if err != nil {
		return nil, err.Error()
	}
	metric, score, err := models.ScoreFromPayload(payload)
	if err != nil {
		return nil, err.Error()
	}
	if metric != job.Metric() {
		return nil, fmt.Sprintf("result metric %s does not match job metric %s", metric, job.Metric())
	}
	structure, err := store.ReadUnrelaxed(slot.Name)
	if err != nil {
		return nil, err.Error()
	}
	if running != nil {
		recorded, ok := running.Scores[slot.Name]
		if !ok {
			return nil, "not recorded in running summary"
		}
		if math.Abs(recorded-score) > scoreTolerance {
			return nil, fmt.Sprintf("running summary score %v differs from result score %v", recorded, score)
		}
	}

	return &models.ModelResult{
		Slot:      slot,
		Metric:    metric,
		Score:     score,
		Structure: structure,
		Payload:   payload,
	}, ""
}

// restoreFinal loads every slot of a completed job and checks that the final
// summary accounts for exactly the expected slots
func (s *Scanner) restoreFinal(
	job *models.Job,
	cm *storage.CheckpointManager,
	slots []models.ModelSlot,
	final *models.FinalSummary,
	state *State,
) (*State, error) {
	if err := ValidateFinal(job, slots, final); err != nil {
		return nil, err
	}

	s.logger.Info("ranking_debug.json exists. Skipping prediction. Restoring unrelaxed predictions and ranked order",
		zap.String("job", job.Name))

	store := cm.Store()
	for _, slot := range slots {
		structure, err := store.ReadUnrelaxed(slot.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: unrelaxed structure of %s: %v", ErrCorruptFinalSummary, slot.Name, err)
		}
		state.Structures[slot.Name] = structure
		state.Scores[slot.Name] = final.Scores[slot.Name]

		payload, err := store.ReadPayload(slot.Name)
		if err != nil {
			s.logger.Warn("result payload missing for completed slot",
				zap.String("job", job.Name), zap.String("slot", slot.Name), zap.Error(err))
			continue
		}
		state.Payloads[slot.Name] = payload
	}

	state.JobState = models.JobStateComplete
	state.Start = len(slots)
	state.Final = final
	state.Timings = cm.LoadTimings()
	return state, nil
}

// ValidateFinal checks that a final summary ranks exactly the job's slots
func ValidateFinal(job *models.Job, slots []models.ModelSlot, final *models.FinalSummary) error {
	if final.Metric != job.Metric() {
		return fmt.Errorf("%w: metric %s, expected %s", ErrCorruptFinalSummary, final.Metric, job.Metric())
	}
	if len(final.Order) != len(slots) {
		return fmt.Errorf("%w: order lists %d of %d slots", ErrCorruptFinalSummary, len(final.Order), len(slots))
	}
	if len(final.Scores) != len(slots) {
		return fmt.Errorf("%w: %d scores for %d slots", ErrCorruptFinalSummary, len(final.Scores), len(slots))
	}

	expected := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		expected[slot.Name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(final.Order))
	for _, name := range final.Order {
		if _, ok := expected[name]; !ok {
			return fmt.Errorf("%w: unknown slot %s in order", ErrCorruptFinalSummary, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: slot %s ranked twice", ErrCorruptFinalSummary, name)
		}
		if _, ok := final.Scores[name]; !ok {
			return fmt.Errorf("%w: slot %s has no score", ErrCorruptFinalSummary, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
