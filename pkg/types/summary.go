// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// FileStatus is the outcome of one input file's pass.
type FileStatus string

const (
	FileOK     FileStatus = "ok"
	FileFailed FileStatus = "failed"
)

// FileSummary reports the pass over one (field, year) input file.
type FileSummary struct {
	Field string `json:"field" yaml:"field"`
	Year  int    `json:"year" yaml:"year"`

	// Input is the CSV path that was read.
	Input string `json:"input" yaml:"input"`

	Status FileStatus `json:"status" yaml:"status"`

	// Rows is the number of valid records extracted; SkippedRows counts rows
	// without a PubMed identifier.
	Rows        int `json:"rows" yaml:"rows"`
	SkippedRows int `json:"skipped_rows" yaml:"skipped_rows"`

	Sampled  int `json:"sampled" yaml:"sampled"`
	Resolved int `json:"resolved" yaml:"resolved"`
	Fallback int `json:"fallback" yaml:"fallback"`
	Dropped  int `json:"dropped" yaml:"dropped"`

	// Outputs lists the artifacts written for this file.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Failed reports whether the file's pass ended in an error.
func (s FileSummary) Failed() bool { return s.Status == FileFailed }

// RunSummary aggregates every file processed for one field.
type RunSummary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Field     string        `json:"field" yaml:"field"`
	StartYear int           `json:"start_year" yaml:"start_year"`
	EndYear   int           `json:"end_year" yaml:"end_year"`
	Seed      int64         `json:"seed" yaml:"seed"`
	Sample    int           `json:"sample_size" yaml:"sample_size"`
	Started   time.Time     `json:"started" yaml:"started"`
	Files     []FileSummary `json:"files" yaml:"files"`
}

// Succeeded returns the number of files processed without error.
func (r RunSummary) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if !f.Failed() {
			n++
		}
	}
	return n
}

// FailedCount returns the number of files whose pass failed.
func (r RunSummary) FailedCount() int {
	return len(r.Files) - r.Succeeded()
}

// HasFailures reports whether any file failed.
func (r RunSummary) HasFailures() bool {
	return r.FailedCount() > 0
}
