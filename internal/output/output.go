// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes harvest lists and run reports.
//
// Every artifact is written to a temporary file in the destination directory
// and renamed into place, so a reader never observes a partial list. Output
// bytes depend only on the partition, which keeps seeded runs reproducible.
package output

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdiddy/harvest-lists/pkg/types"
)

// Paths names the artifacts of one (field, year) pass.
type Paths struct {
	// Resolved is the gzip-compressed JSON Lines list of open-access articles.
	Resolved string

	// Fallback is the plain-text list of PMC identifiers.
	Fallback string

	// Dropped is the CSV dump of records that landed in neither list.
	Dropped string
}

// Entry is one line of the resolved harvest list.
type Entry struct {
	ID         string `json:"id"`
	DOI        string `json:"doi"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	PMCID      string `json:"pmcid,omitempty"`
	LandingURL string `json:"landing_url,omitempty"`
	License    string `json:"license,omitempty"`
	HostType   string `json:"host_type,omitempty"`
	Version    string `json:"version,omitempty"`
}

// NewEntry builds the harvest-list line for a resolved article.
func NewEntry(a types.ResolvedArticle) Entry {
	return Entry{
		ID:         a.Record.PMID,
		DOI:        a.Record.DOI,
		URL:        a.Location.URL,
		Title:      a.Location.Title,
		PMCID:      a.Record.PMCID,
		LandingURL: a.Location.LandingURL,
		License:    a.Location.License,
		HostType:   a.Location.HostType,
		Version:    a.Location.Version,
	}
}

// Writer persists partitions.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer. A nil logger discards diagnostics.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{logger: logger}
}

// Write emits one artifact per non-empty group of p and returns the paths
// written. An empty group produces no artifact; any artifact left at its
// path by an earlier run is removed. An empty path in paths disables that
// artifact.
func (w *Writer) Write(p types.Partition, paths Paths) ([]string, error) {
	var written []string

	steps := []struct {
		path  string
		empty bool
		write func(io.Writer) error
	}{
		{paths.Resolved, len(p.Resolved) == 0, func(out io.Writer) error { return writeResolved(out, p.Resolved) }},
		{paths.Fallback, len(p.Fallback) == 0, func(out io.Writer) error { return writeFallback(out, p.Fallback) }},
		{paths.Dropped, len(p.Dropped) == 0, func(out io.Writer) error { return writeDropped(out, p.Dropped) }},
	}
	for _, s := range steps {
		if s.path == "" {
			continue
		}
		if s.empty {
			removed, err := removeStale(s.path)
			if err != nil {
				return written, err
			}
			if removed {
				w.logger.Debug("removed stale artifact", "path", s.path)
			}
			continue
		}
		if err := writeAtomic(s.path, s.write); err != nil {
			return written, err
		}
		w.logger.Debug("wrote artifact", "path", s.path)
		written = append(written, s.path)
	}
	return written, nil
}

// writeResolved writes one JSON object per line through gzip. The gzip
// header carries no file name or modification time.
func writeResolved(out io.Writer, articles []types.ResolvedArticle) error {
	zw := gzip.NewWriter(out)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	for _, a := range articles {
		if err := enc.Encode(NewEntry(a)); err != nil {
			zw.Close()
			return fmt.Errorf("encoding %s: %w", a.Record.PMID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing gzip stream: %w", err)
	}
	return nil
}

func writeFallback(out io.Writer, records []types.ArticleRecord) error {
	for _, r := range records {
		if _, err := fmt.Fprintln(out, r.PMCID); err != nil {
			return err
		}
	}
	return nil
}

func writeDropped(out io.Writer, dropped []types.DroppedArticle) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"pmid", "doi", "pmcid", "reason"}); err != nil {
		return err
	}
	for _, d := range dropped {
		if err := cw.Write([]string{d.Record.PMID, d.Record.DOI, d.Record.PMCID, string(d.Reason)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResolved decodes a resolved harvest list.
func ReadResolved(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
	}
	defer zr.Close()

	var entries []Entry
	dec := json.NewDecoder(zr)
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		entries = append(entries, e)
	}
}

// writeAtomic writes path through a temporary sibling file.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".harvest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	bw := bufio.NewWriter(tmpFile)
	writeErr := write(bw)
	if writeErr == nil {
		writeErr = bw.Flush()
	}
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	// CreateTemp uses 0600.
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func removeStale(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("removing stale %s: %w", path, err)
}
