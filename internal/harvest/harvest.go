// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest runs the extraction, sampling, classification and writing
// stages over every input file of one field.
//
// Files are processed one at a time in year order. A failure in one file is
// reported and recorded in the run summary; the run moves on to the next file.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/harvest-lists/internal/output"
	"github.com/pdiddy/harvest-lists/internal/records"
	"github.com/pdiddy/harvest-lists/internal/sample"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// Classifier partitions a sample by availability.
type Classifier interface {
	Classify(ctx context.Context, sample []types.ArticleRecord) (types.Partition, error)
}

// Runner processes the input files of a field.
type Runner struct {
	cfg        types.HarvestConfig
	classifier Classifier
	writer     *output.Writer
	w          io.Writer
	logger     *slog.Logger

	now   func() time.Time
	runID func() string
}

// NewRunner creates a Runner. Progress lines go to w; diagnostics go to logger.
func NewRunner(cfg types.HarvestConfig, classifier Classifier, w io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "harvest")
	return &Runner{
		cfg:        cfg,
		classifier: classifier,
		writer:     output.NewWriter(logger),
		w:          w,
		logger:     logger,
		now:        time.Now,
		runID:      uuid.NewString,
	}
}

type inputFile struct {
	year int
	path string
}

// Run processes every <field><year>.csv with year in the configured range.
// It returns ErrInvalidConfig or ErrNoInputFiles before doing any work, and
// the context's error if the run was cancelled. Per-file failures are not
// returned; they are recorded in the summary.
func (r *Runner) Run(ctx context.Context, field string) (types.RunSummary, error) {
	if err := r.validate(field); err != nil {
		return types.RunSummary{}, err
	}

	inputs := r.discover(field)
	if len(inputs) == 0 {
		return types.RunSummary{}, fmt.Errorf("%w: no %s<year>.csv for %d-%d under %s",
			ErrNoInputFiles, field, r.cfg.StartYear, r.cfg.EndYear, r.cfg.InputDir)
	}

	seed := sample.ResolveSeed(r.cfg.Seed)
	run := types.RunSummary{
		RunID:     r.runID(),
		Field:     field,
		StartYear: r.cfg.StartYear,
		EndYear:   r.cfg.EndYear,
		Seed:      seed,
		Sample:    r.cfg.SampleSize,
		Started:   r.now().UTC(),
	}
	logger := r.logger.With("run_id", run.RunID, "field", field)
	logger.Info("run started", "files", len(inputs), "seed", seed, "sample_size", r.cfg.SampleSize)

	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		run.Files = append(run.Files, r.processFile(ctx, logger, field, in, seed))
	}

	fmt.Fprintf(r.w, "\nRun summary: %d succeeded, %d failed (total: %d)\n",
		run.Succeeded(), run.FailedCount(), len(run.Files))

	if err := r.writeReports(field, run); err != nil {
		return run, err
	}
	if err := ctx.Err(); err != nil {
		return run, err
	}
	logger.Info("run finished", "succeeded", run.Succeeded(), "failed", run.FailedCount())
	return run, nil
}

func (r *Runner) validate(field string) error {
	if field == "" || field == "." || field == ".." || strings.ContainsAny(field, `/\`) {
		return fmt.Errorf("%w: field %q must be a plain directory name", ErrInvalidConfig, field)
	}
	if r.cfg.StartYear > r.cfg.EndYear {
		return fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidConfig, r.cfg.StartYear, r.cfg.EndYear)
	}
	if strings.TrimSpace(r.cfg.Email) == "" {
		return fmt.Errorf("%w: a contact email is required for open-access lookups", ErrInvalidConfig)
	}
	info, err := os.Stat(r.cfg.InputDir)
	if err != nil {
		return fmt.Errorf("%w: input directory: %v", ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: input path %s is not a directory", ErrInvalidConfig, r.cfg.InputDir)
	}
	return nil
}

// discover lists the input files that exist, in year order.
func (r *Runner) discover(field string) []inputFile {
	var inputs []inputFile
	for year := r.cfg.StartYear; year <= r.cfg.EndYear; year++ {
		path := InputPath(r.cfg, field, year)
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("cannot stat input", "path", path, "error", err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		inputs = append(inputs, inputFile{year: year, path: path})
	}
	return inputs
}

func (r *Runner) processFile(ctx context.Context, logger *slog.Logger, field string, in inputFile, seed int64) types.FileSummary {
	start := r.now()
	fs := types.FileSummary{Field: field, Year: in.year, Input: in.path, Status: types.FileOK}
	flog := logger.With("year", in.year, "input", in.path)

	fmt.Fprintf(r.w, "processing: %s\n", in.path)
	err := r.runFile(ctx, flog, field, in, seed, &fs)
	fs.Duration = r.now().Sub(start)
	if err != nil {
		fs.Status = types.FileFailed
		fs.Error = err.Error()
		fmt.Fprintf(r.w, "failed:  %s (%v)\n", in.path, err)
		flog.Error("file failed", "error", err)
		return fs
	}

	fmt.Fprintf(r.w, "  %d rows, %d sampled: %d resolved, %d fallback, %d dropped\n",
		fs.Rows, fs.Sampled, fs.Resolved, fs.Fallback, fs.Dropped)
	flog.Info("file done", "sampled", fs.Sampled, "resolved", fs.Resolved,
		"fallback", fs.Fallback, "dropped", fs.Dropped, "duration", fs.Duration)
	return fs
}

func (r *Runner) runFile(ctx context.Context, logger *slog.Logger, field string, in inputFile, seed int64, fs *types.FileSummary) error {
	ex, err := records.ExtractFile(in.path)
	if err != nil {
		if records.IsSchemaError(err) {
			return err
		}
		return &IOError{Op: "extract", Path: in.path, Err: err}
	}
	fs.Rows = len(ex.Records)
	fs.SkippedRows = ex.Skipped
	if ex.Skipped > 0 {
		logger.Warn("rows without a PubMed ID skipped", "count", ex.Skipped)
	}

	picked := sample.Sample(ex.Records, r.cfg.SampleSize, sample.Derive(seed, in.year))
	fs.Sampled = len(picked)

	// An aborted classification cancels only this file's lookups.
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p, err := r.classifier.Classify(fctx, picked)
	if err != nil {
		return fmt.Errorf("classifying: %w", err)
	}
	fs.Resolved = len(p.Resolved)
	fs.Fallback = len(p.Fallback)
	fs.Dropped = len(p.Dropped)

	written, err := r.writer.Write(p, OutputPaths(r.cfg, field, in.year))
	fs.Outputs = written
	if err != nil {
		return &IOError{Op: "write", Path: in.path, Err: err}
	}
	return nil
}

func (r *Runner) writeReports(field string, run types.RunSummary) error {
	report := ReportPath(r.cfg, field)
	if err := output.WriteReport(report, run); err != nil {
		return &IOError{Op: "report", Path: report, Err: err}
	}
	summary := SummaryPath(r.cfg, field)
	if err := output.WriteSummary(summary, run); err != nil {
		return &IOError{Op: "summary", Path: summary, Err: err}
	}
	fmt.Fprintf(r.w, "report:  %s\n", report)
	return nil
}
