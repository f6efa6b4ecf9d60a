package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fold-orchestrator/core/models"
)

// ErrNotFound is returned when an artifact does not exist in the job directory
var ErrNotFound = errors.New("storage: artifact not found")

const (
	unrelaxedPrefix = "unrelaxed_"
	relaxedPrefix   = "relaxed_"
	rankedPrefix    = "ranked_"
	resultPrefix    = "result_"
	structureExt    = ".pdb"
	resultExt       = ".json"
)

// UnrelaxedFile returns the file name of a slot's unrelaxed structure
func UnrelaxedFile(slotName string) string { return unrelaxedPrefix + slotName + structureExt }

// RelaxedFile returns the file name of a slot's relaxed structure
func RelaxedFile(slotName string) string { return relaxedPrefix + slotName + structureExt }

// ResultFile returns the file name of a slot's raw result payload
func ResultFile(slotName string) string { return resultPrefix + slotName + resultExt }

// RankedFile returns the file name of the structure published at a rank
func RankedFile(rank int) string { return fmt.Sprintf("%s%d%s", rankedPrefix, rank, structureExt) }

// Option configures an ArtifactStore
type Option func(*ArtifactStore)

// WithRenameFunc replaces the rename step of atomic writes
func WithRenameFunc(fn func(oldPath, newPath string) error) Option {
	return func(s *ArtifactStore) {
		s.rename = fn
	}
}

// ArtifactStore reads and writes the files of a single job directory
type ArtifactStore struct {
	dir    string
	rename func(oldPath, newPath string) error
}

// NewArtifactStore creates a store rooted at a job directory
func NewArtifactStore(dir string, opts ...Option) *ArtifactStore {
	s := &ArtifactStore{dir: dir, rename: os.Rename}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the job directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Path returns the absolute location of a file in the job directory
func (s *ArtifactStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Ensure creates the job directory if needed
func (s *ArtifactStore) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create job dir %s: %w", s.dir, err)
	}
	return nil
}

// Exists reports whether a file is present in the job directory
func (s *ArtifactStore) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// Remove deletes a file; a missing file is not an error
func (s *ArtifactStore) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of a file or ErrNotFound
func (s *ArtifactStore) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// WriteFile publishes a file atomically
func (s *ArtifactStore) WriteFile(name string, data []byte) error {
	return s.writeFileAtomic(s.Path(name), data)
}

// WriteUnrelaxed stores a slot's unrelaxed structure
func (s *ArtifactStore) WriteUnrelaxed(slotName string, structure models.Structure) error {
	return s.WriteFile(UnrelaxedFile(slotName), structure)
}

// ReadUnrelaxed loads and validates a slot's unrelaxed structure
func (s *ArtifactStore) ReadUnrelaxed(slotName string) (models.Structure, error) {
	return s.readStructure(UnrelaxedFile(slotName))
}

// WriteRelaxed stores a slot's relaxed structure
func (s *ArtifactStore) WriteRelaxed(slotName string, structure models.Structure) error {
	return s.WriteFile(RelaxedFile(slotName), structure)
}

// ReadRelaxed loads and validates a slot's relaxed structure
func (s *ArtifactStore) ReadRelaxed(slotName string) (models.Structure, error) {
	return s.readStructure(RelaxedFile(slotName))
}

// HasRelaxed reports whether a slot has already been relaxed
func (s *ArtifactStore) HasRelaxed(slotName string) bool {
	return s.Exists(RelaxedFile(slotName))
}

// WriteRanked publishes the structure at a rank position
func (s *ArtifactStore) WriteRanked(rank int, structure models.Structure) error {
	return s.WriteFile(RankedFile(rank), structure)
}

// WritePayload stores a slot's raw result document
func (s *ArtifactStore) WritePayload(slotName string, payload []byte) error {
	return s.WriteFile(ResultFile(slotName), payload)
}

// ReadPayload loads a slot's raw result document
func (s *ArtifactStore) ReadPayload(slotName string) ([]byte, error) {
	return s.ReadFile(ResultFile(slotName))
}

func (s *ArtifactStore) readStructure(name string) (models.Structure, error) {
	data, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if err := ValidatePDB(data); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return models.Structure(data), nil
}

// ValidatePDB checks that data holds at least one coordinate record
func ValidatePDB(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("structure is empty")
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM") {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan structure: %w", err)
	}
	return fmt.Errorf("structure has no ATOM records")
}

// List returns every artifact in the job directory, sorted by name
func (s *ArtifactStore) List() ([]models.JobArtifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.dir, ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	var artifacts []models.JobArtifact
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifactType, slotName := ClassifyFile(entry.Name())
		artifacts = append(artifacts, models.JobArtifact{
			JobName:   filepath.Base(s.dir),
			Type:      artifactType,
			URI:       s.Path(entry.Name()),
			SlotName:  slotName,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].URI < artifacts[j].URI })
	return artifacts, nil
}

// ClassifyFile maps a job directory file name to its artifact type and slot
func ClassifyFile(name string) (models.ArtifactType, string) {
	switch {
	case name == RunningSummaryFile || name == FinalSummaryFile:
		return models.ArtifactTypeCheckpoint, ""
	case name == TimingsFile || name == RunningTimingsFile:
		return models.ArtifactTypeTimings, ""
	case name == RelaxMetricsFile:
		return models.ArtifactTypeRelaxMetrics, ""
	case strings.HasPrefix(name, unrelaxedPrefix) && strings.HasSuffix(name, structureExt):
		return models.ArtifactTypeUnrelaxed, strings.TrimSuffix(strings.TrimPrefix(name, unrelaxedPrefix), structureExt)
	case strings.HasPrefix(name, relaxedPrefix) && strings.HasSuffix(name, structureExt):
		return models.ArtifactTypeRelaxed, strings.TrimSuffix(strings.TrimPrefix(name, relaxedPrefix), structureExt)
	case strings.HasPrefix(name, rankedPrefix) && strings.HasSuffix(name, structureExt):
		return models.ArtifactTypeRanked, ""
	case strings.HasPrefix(name, resultPrefix) && strings.HasSuffix(name, resultExt):
		return models.ArtifactTypeResult, strings.TrimSuffix(strings.TrimPrefix(name, resultPrefix), resultExt)
	}
	return models.ArtifactTypeOther, ""
}
