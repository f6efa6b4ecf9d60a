package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// tempSuffix marks a file that is being written and has not been published yet
const tempSuffix = ".tmp"

// writeFileAtomic writes data next to path and renames it into place, so a
// reader sees either the previous file or the complete new one.
func (s *ArtifactStore) writeFileAtomic(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + tempSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// writeJSONAtomic encodes v with four-space indentation and publishes it atomically
func (s *ArtifactStore) writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return s.writeFileAtomic(path, append(data, '\n'))
}
