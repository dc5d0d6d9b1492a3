// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/harvest-lists/pkg/types"
)

var reportHeader = []string{"Year", "Rows", "Sampled", "Resolved", "Fallback", "Dropped", "Error"}

// WriteReport writes the per-year counts of a run as CSV, one row per file.
func WriteReport(path string, run types.RunSummary) error {
	return writeAtomic(path, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(reportHeader); err != nil {
			return err
		}
		for _, f := range run.Files {
			row := []string{
				strconv.Itoa(f.Year),
				strconv.Itoa(f.Rows),
				strconv.Itoa(f.Sampled),
				strconv.Itoa(f.Resolved),
				strconv.Itoa(f.Fallback),
				strconv.Itoa(f.Dropped),
				f.Error,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteSummary writes the run summary as YAML.
func WriteSummary(path string, run types.RunSummary) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return writeAtomic(path, func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	})
}
