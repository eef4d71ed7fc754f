package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Snapshotter persists the full job set. The Manager snapshots on every
// mutating operation, so implementations should be cheap for small job counts.
type Snapshotter interface {
	SaveJobs(jobs []*Job) error
	LoadJobs() ([]*Job, error)
}

// FileSnapshot persists jobs as a single JSON document on disk.
//
// Writes go through a temp file and rename so a crash mid-write never leaves
// a torn snapshot behind.
type FileSnapshot struct {
	path string
}

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: strings.TrimSpace(path)}
}

func (f *FileSnapshot) Path() string {
	return f.path
}

func (f *FileSnapshot) SaveJobs(jobs []*Job) error {
	if f.path == "" {
		return fmt.Errorf("jobs snapshot path is empty")
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	b, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs snapshot: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "jobs.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (f *FileSnapshot) LoadJobs() ([]*Job, error) {
	if f.path == "" {
		return nil, fmt.Errorf("jobs snapshot path is empty")
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs snapshot: %w", err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, nil
	}

	var out []*Job
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("parse jobs snapshot: %w", err)
	}
	return out, nil
}
