package service

import (
	"context"
	"fmt"
	"os"

	"salesflow_backend/internal/catalog/domain"

	"gopkg.in/yaml.v3"
)

// FileLoader reads a static catalog from a YAML document. It backs local
// sandbox runs where no catalog tables are populated.
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for the YAML file at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadSnapshot parses the file on every call so edits are picked up once
// the cache entry expires.
func (l *FileLoader) LoadSnapshot(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseSnapshotYAML(raw)
}

// ParseSnapshotYAML decodes and normalizes a YAML catalog document.
func ParseSnapshotYAML(raw []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("parse catalog file: %w", err)
	}
	snap.Normalize()
	return snap, nil
}
