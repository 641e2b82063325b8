package workflow

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrReportNotFound is returned when no run report has been persisted yet.
var ErrReportNotFound = errors.New("workflow: run report not found")

// ReportStore persists the most recent run result.
type ReportStore interface {
	Load() (RunResult, error)
	Save(RunResult) error
}

// Repository stores the last run result as JSON at a fixed path.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path reports where the report is stored.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the persisted report if present.
func (r *Repository) Load() (RunResult, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RunResult{}, ErrReportNotFound
		}
		return RunResult{}, err
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return RunResult{}, err
	}
	return result, nil
}

// Save writes the report to disk with best-effort atomicity.
func (r *Repository) Save(result RunResult) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
