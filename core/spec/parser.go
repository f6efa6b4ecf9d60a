package spec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fold-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSpec is returned for batch specs that cannot produce jobs
var ErrInvalidSpec = errors.New("invalid batch spec")

// BatchSpec represents the YAML batch specification
type BatchSpec struct {
	Mode                   string         `yaml:"mode"` // monomer | multimer; empty = by chain count
	NumCycle               int            `yaml:"num_cycle"`
	NumPredictionsPerModel int            `yaml:"num_predictions_per_model"`
	ModelNames             []string       `yaml:"model_names"`
	RandomSeed             *int64         `yaml:"random_seed,omitempty"`
	OutputPath             string         `yaml:"output_path"`
	DataDir                string         `yaml:"data_dir"`
	ModelsToRelax          string         `yaml:"models_to_relax"`
	FeaturesDir            string         `yaml:"features_dir"`
	ProteinLists           []string       `yaml:"protein_lists"`
	Jobs                   []BatchSpecJob `yaml:"jobs"`

	baseDir string
}

// BatchSpecJob is one explicitly listed complex
type BatchSpecJob struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
}

// Overrides carries command line values that take precedence over the spec.
// Zero values leave the spec untouched.
type Overrides struct {
	Mode                   string
	NumCycle               int
	NumPredictionsPerModel int
	OutputPath             string
	DataDir                string
	ModelsToRelax          string
	RandomSeed             *int64
}

// LoadBatchSpec reads a batch spec file; relative paths inside it resolve
// against the file's directory
func LoadBatchSpec(path string) (*BatchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch spec: %w", err)
	}
	return ParseBatchSpec(data, filepath.Dir(path))
}

// ParseBatchSpec parses a YAML batch specification
func ParseBatchSpec(data []byte, baseDir string) (*BatchSpec, error) {
	var spec BatchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidSpec, err)
	}
	spec.baseDir = baseDir
	return &spec, nil
}

// Apply merges command line overrides into the spec
func (s *BatchSpec) Apply(o Overrides) {
	if o.Mode != "" {
		s.Mode = o.Mode
	}
	if o.NumCycle > 0 {
		s.NumCycle = o.NumCycle
	}
	if o.NumPredictionsPerModel > 0 {
		s.NumPredictionsPerModel = o.NumPredictionsPerModel
	}
	if o.OutputPath != "" {
		s.OutputPath = o.OutputPath
	}
	if o.DataDir != "" {
		s.DataDir = o.DataDir
	}
	if o.ModelsToRelax != "" {
		s.ModelsToRelax = o.ModelsToRelax
	}
	if o.RandomSeed != nil {
		s.RandomSeed = o.RandomSeed
	}
}

// BuildJobs expands the spec into one job per complex, in listing order:
// explicit jobs first, then every line of every protein list
func (s *BatchSpec) BuildJobs() ([]*models.Job, error) {
	if s.OutputPath == "" {
		return nil, fmt.Errorf("%w: output_path is required", ErrInvalidSpec)
	}
	policy, err := models.ParseRelaxPolicy(s.ModelsToRelax)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	var forcedMode models.Mode
	if s.Mode != "" {
		forcedMode, err = models.ParseMode(s.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	}

	entries := append([]BatchSpecJob{}, s.Jobs...)
	for _, list := range s.ProteinLists {
		listed, err := s.readProteinList(s.resolve(list))
		if err != nil {
			return nil, err
		}
		entries = append(entries, listed...)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no jobs listed", ErrInvalidSpec)
	}

	seed := s.randomSeed()
	predictions := s.NumPredictionsPerModel
	if predictions == 0 {
		predictions = 1
	}
	numCycle := s.NumCycle
	if numCycle == 0 {
		numCycle = 3
	}

	jobs := make([]*models.Job, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Name == "" || len(entry.Features) == 0 {
			return nil, fmt.Errorf("%w: every job needs a name and features", ErrInvalidSpec)
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate job %s", ErrInvalidSpec, entry.Name)
		}
		seen[entry.Name] = struct{}{}

		mode := forcedMode
		if mode == "" {
			mode = models.ModeMonomer
			if len(entry.Features) > 1 {
				mode = models.ModeMultimer
			}
		}
		modelNames := s.ModelNames
		if len(modelNames) == 0 {
			modelNames = models.DefaultModelNames(mode)
		}

		features := make([]string, len(entry.Features))
		for i, f := range entry.Features {
			features[i] = s.resolve(f)
		}

		job := &models.Job{
			Name:                entry.Name,
			OutputDir:           filepath.Join(s.resolve(s.OutputPath), entry.Name),
			DataDir:             s.DataDir,
			Features:            features,
			Mode:                mode,
			ModelNames:          append([]string{}, modelNames...),
			PredictionsPerModel: predictions,
			NumCycle:            numCycle,
			RandomSeed:          seed,
			RelaxPolicy:         policy,
		}
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SelectJob picks a single job by its 1-based index, as array-job schedulers do
func SelectJob(jobs []*models.Job, index int) (*models.Job, error) {
	if index < 1 || index > len(jobs) {
		return nil, fmt.Errorf("job index %d out of range 1..%d", index, len(jobs))
	}
	return jobs[index-1], nil
}

// readProteinList parses a list with one complex per line. Members are
// separated by ';' or ','; the job is named after its members joined by _and_.
func (s *BatchSpec) readProteinList(path string) ([]BatchSpecJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read protein list: %v", ErrInvalidSpec, err)
	}

	var jobs []BatchSpecJob
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		members := strings.FieldsFunc(line, func(r rune) bool { return r == ';' || r == ',' })
		var names, features []string
		for _, m := range members {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			names = append(names, m)
			features = append(features, filepath.Join(s.FeaturesDir, m+".pkl"))
		}
		if len(names) == 0 {
			continue
		}
		jobs = append(jobs, BatchSpecJob{Name: strings.Join(names, "_and_"), Features: features})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read protein list: %v", ErrInvalidSpec, err)
	}
	return jobs, nil
}

func (s *BatchSpec) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.baseDir == "" {
		return path
	}
	return filepath.Join(s.baseDir, path)
}

// randomSeed returns the configured seed or draws one, as the model runner
// does when no seed is given
func (s *BatchSpec) randomSeed() int64 {
	if s.RandomSeed != nil {
		return *s.RandomSeed
	}
	seed := rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1 << 31)
	s.RandomSeed = &seed
	return seed
}
