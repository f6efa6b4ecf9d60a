package models

import (
	"fmt"
	"strings"
)

// Job represents one modelled complex: a fixed set of model slots that share
// an output directory.
type Job struct {
	Name                string
	RunID               string // Execution pass identifier, assigned per run
	OutputDir           string // <output_path>/<Name>
	DataDir             string
	Features            []string // Feature files for every chain of the complex
	Mode                Mode
	ModelNames          []string
	PredictionsPerModel int
	NumCycle            int
	RandomSeed          int64
	RelaxPolicy         RelaxPolicy
}

// Mode determines which confidence metric ranks the predictions
type Mode string

const (
	ModeMonomer  Mode = "monomer"
	ModeMultimer Mode = "multimer"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMonomer:
		return ModeMonomer, nil
	case ModeMultimer:
		return ModeMultimer, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// DefaultModelNames returns the five model configurations used for a mode
func DefaultModelNames(mode Mode) []string {
	names := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		if mode == ModeMultimer {
			names = append(names, fmt.Sprintf("model_%d_multimer_v3", i))
		} else {
			names = append(names, fmt.Sprintf("model_%d", i))
		}
	}
	return names
}

// RelaxPolicy selects which ranked models get relaxed
type RelaxPolicy string

const (
	RelaxNone RelaxPolicy = "none"
	RelaxBest RelaxPolicy = "best"
	RelaxAll  RelaxPolicy = "all"
)

// ParseRelaxPolicy accepts none, best (or best-only) and all
func ParseRelaxPolicy(s string) (RelaxPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RelaxNone, nil
	case "best", "best-only", "best_only":
		return RelaxBest, nil
	case "all":
		return RelaxAll, nil
	}
	return "", fmt.Errorf("unknown relaxation policy %q", s)
}

// JobState is the job's progress as encoded by the checkpoint files on disk
type JobState string

const (
	JobStateNotStarted JobState = "not_started"
	JobStateInProgress JobState = "in_progress"
	JobStateComplete   JobState = "complete"
)

// Metric returns the score field name used by this job's checkpoints
func (j *Job) Metric() Metric {
	if j.Mode == ModeMultimer {
		return MetricIPTMPTM
	}
	return MetricPLDDT
}

// SlotCount returns N, the number of model slots in the job
func (j *Job) SlotCount() int {
	return len(j.ModelNames) * j.PredictionsPerModel
}

// Slots enumerates the job's slots model-major: every prediction of the
// first model configuration, then the second, and so on.
func (j *Job) Slots() []ModelSlot {
	slots := make([]ModelSlot, 0, j.SlotCount())
	for _, modelName := range j.ModelNames {
		for p := 0; p < j.PredictionsPerModel; p++ {
			slots = append(slots, ModelSlot{
				Index:           len(slots),
				Name:            SlotName(modelName, p),
				ModelName:       modelName,
				PredictionIndex: p,
			})
		}
	}
	return slots
}

// SlotSeed derives the deterministic seed of a slot from the job seed
func (j *Job) SlotSeed(slot ModelSlot) int64 {
	return int64(slot.Index) + j.RandomSeed*int64(j.SlotCount())
}

// Validate checks that the job describes at least one slot
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is empty")
	}
	if j.OutputDir == "" {
		return fmt.Errorf("job %s: output directory is empty", j.Name)
	}
	if len(j.ModelNames) == 0 {
		return fmt.Errorf("job %s: no model names", j.Name)
	}
	if j.PredictionsPerModel < 1 {
		return fmt.Errorf("job %s: predictions per model must be positive, got %d", j.Name, j.PredictionsPerModel)
	}
	seen := make(map[string]struct{}, len(j.ModelNames))
	for _, name := range j.ModelNames {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("job %s: duplicate model name %s", j.Name, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
