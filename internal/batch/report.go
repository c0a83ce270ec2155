package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/pathminer/internal/extract"
)

// maxReportErrors caps the error list persisted with a report.
const maxReportErrors = 1000

// Report summarizes one job run. It is saved as {dir}/{run_id}.json.
type Report struct {
	RunID          string             `json:"run_id"`
	Job            string             `json:"job"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	Discovered     int                `json:"discovered"`
	Skipped        int                `json:"skipped"`
	Processed      int                `json:"processed"`
	Failed         int                `json:"failed"`
	DecisionPoints int                `json:"decision_points"`
	FilesWritten   int                `json:"files_written"`
	SkippedTurns   extract.SkipCounts `json:"skipped_turns"`
	Errors         []string           `json:"errors"`
	ErrorsDropped  int                `json:"errors_dropped,omitempty"`

	path string // not serialized
}

// NewReport starts a report for job. An empty dir means the report is never
// written to disk.
func NewReport(job, dir string) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		Job:       job,
		StartedAt: time.Now().UTC(),
	}
	if dir != "" {
		r.path = filepath.Join(expandHome(dir), r.RunID+".json")
	}
	return r
}

// LoadReport reads a saved report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	r.path = path
	return &r, nil
}

func (r *Report) Path() string {
	return r.path
}

// Save persists the report.
func (r *Report) Save() error {
	if r.path == "" {
		return nil
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return os.WriteFile(r.path, data, 0o644)
}

// AddError records a per-unit failure.
func (r *Report) AddError(msg string) {
	if len(r.Errors) >= maxReportErrors {
		r.ErrorsDropped++
		return
	}
	r.Errors = append(r.Errors, msg)
}

func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

func (r *Report) Duration() time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(r.StartedAt)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
