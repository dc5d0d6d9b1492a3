// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"fmt"
	"path/filepath"

	"github.com/pdiddy/harvest-lists/internal/output"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// Directory layout, relative to the configured roots:
//
//	<input>/<field>/<field><year>.csv
//	<output>/<field>/<field><year>-UPW.jsonl.gz
//	<output>/<field>/<field><year>-PMC.txt
//	<reports>/<field>/<field><year>-dump.csv
//	<reports>/<field>/<field>Report.csv
//	<reports>/<field>/<field>Summary.yaml

// InputPath returns the CSV export for one field and year.
func InputPath(cfg types.HarvestConfig, field string, year int) string {
	return filepath.Join(cfg.InputDir, field, fmt.Sprintf("%s%d.csv", field, year))
}

// OutputPaths returns the artifacts written for one field and year.
func OutputPaths(cfg types.HarvestConfig, field string, year int) output.Paths {
	stem := fmt.Sprintf("%s%d", field, year)
	return output.Paths{
		Resolved: filepath.Join(cfg.OutputDir, field, stem+"-UPW.jsonl.gz"),
		Fallback: filepath.Join(cfg.OutputDir, field, stem+"-PMC.txt"),
		Dropped:  filepath.Join(cfg.ReportsDir, field, stem+"-dump.csv"),
	}
}

// ReportPath returns the per-field CSV report.
func ReportPath(cfg types.HarvestConfig, field string) string {
	return filepath.Join(cfg.ReportsDir, field, field+"Report.csv")
}

// SummaryPath returns the per-field YAML run summary.
func SummaryPath(cfg types.HarvestConfig, field string) string {
	return filepath.Join(cfg.ReportsDir, field, field+"Summary.yaml")
}
