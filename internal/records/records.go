// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package records extracts article identifiers from bibliographic CSV exports.
// Column names are matched case-insensitively against a fixed alias table so
// that PubMed exports and hand-assembled lists both work.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/harvest-lists/pkg/types"
)

// column identifies one of the fields the extractor understands.
type column int

const (
	colPMID column = iota
	colPMCID
	colDOI
)

func (c column) String() string {
	switch c {
	case colPMID:
		return "pmid"
	case colPMCID:
		return "pmcid"
	case colDOI:
		return "doi"
	default:
		return "unknown"
	}
}

// aliases maps lower-cased header names to the column they denote.
var aliases = map[string]column{
	"pmid":      colPMID,
	"pubmed id": colPMID,
	"pubmed_id": colPMID,
	"pubmedid":  colPMID,
	"pubmed":    colPMID,
	"pmcid":     colPMCID,
	"pmc id":    colPMCID,
	"pmc_id":    colPMCID,
	"pmc":       colPMCID,
	"doi":       colDOI,
	"doi link":  colDOI,
}

// SchemaError reports an input whose header lacks a required column.
type SchemaError struct {
	Path    string
	Missing string
	Header  []string
}

func (e *SchemaError) Error() string {
	where := "input"
	if e.Path != "" {
		where = e.Path
	}
	return fmt.Sprintf("%s: no %s column in header %q", where, e.Missing, e.Header)
}

// IsSchemaError reports whether err is or wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// Extraction is the result of reading one CSV source.
type Extraction struct {
	Records []types.ArticleRecord

	// Skipped counts data rows without a PubMed identifier.
	Skipped int
}

// ExtractFile opens path and extracts its records.
func ExtractFile(path string) (Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	ex, err := Extract(f)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Path = path
			return Extraction{}, se
		}
		return Extraction{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return ex, nil
}

// Extract reads a CSV stream with a header row and returns one record per
// row that carries a PubMed identifier. A header without a PMID column
// yields a *SchemaError.
func Extract(r io.Reader) (Extraction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return Extraction{}, &SchemaError{Missing: colPMID.String()}
	}
	if err != nil {
		return Extraction{}, fmt.Errorf("reading header: %w", err)
	}

	idx := mapHeader(header)
	if _, ok := idx[colPMID]; !ok {
		return Extraction{}, &SchemaError{Missing: colPMID.String(), Header: append([]string(nil), header...)}
	}

	var ex Extraction
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Extraction{}, fmt.Errorf("reading row: %w", err)
		}

		pmid := strings.TrimSpace(field(row, idx, colPMID))
		if pmid == "" {
			ex.Skipped++
			continue
		}
		ex.Records = append(ex.Records, types.ArticleRecord{
			PMID:  pmid,
			PMCID: types.NormalizePMCID(field(row, idx, colPMCID)),
			DOI:   types.NormalizeDOI(field(row, idx, colDOI)),
		})
	}
	return ex, nil
}

// mapHeader returns the position of each recognized column. The first
// matching header wins when several alias the same column.
func mapHeader(header []string) map[column]int {
	idx := make(map[column]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		col, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}
	return idx
}

func field(row []string, idx map[column]int, col column) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
