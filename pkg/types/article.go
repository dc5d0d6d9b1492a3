// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the harvest-lists pipeline.
// Records flow Extractor → Sampler → Classifier → Writer; every stage passes
// values of these types and never mutates a record it did not create.
package types

import "strings"

// ArticleRecord is one row of a bibliographic CSV export.
type ArticleRecord struct {
	// PMID is the PubMed identifier. Always present.
	PMID string `json:"pmid" yaml:"pmid"`

	// PMCID is the PubMed Central identifier ("PMC1234567"), if the row had one.
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`

	// DOI is the bare Digital Object Identifier ("10.1000/xyz"), if the row had one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// HasDOI reports whether the record carries a DOI.
func (r ArticleRecord) HasDOI() bool { return r.DOI != "" }

// HasPMCID reports whether the record carries a PMC identifier.
func (r ArticleRecord) HasPMCID() bool { return r.PMCID != "" }

// Identifiers is the answer of an identifier-resolution lookup. Either field
// may be empty when the service knows no mapping.
type Identifiers struct {
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`
	DOI   string `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// Merge returns r with missing identifiers filled in from ids. Values already
// carried by the record take precedence.
func (r ArticleRecord) Merge(ids Identifiers) ArticleRecord {
	if r.PMCID == "" {
		r.PMCID = NormalizePMCID(ids.PMCID)
	}
	if r.DOI == "" {
		r.DOI = NormalizeDOI(ids.DOI)
	}
	return r
}

// OALocation describes the best open-access copy of an article.
type OALocation struct {
	// URL is the download location: the direct PDF link when the service
	// reports one, otherwise the open-access landing URL.
	URL string `json:"url" yaml:"url"`

	LandingURL string `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	License    string `json:"license,omitempty" yaml:"license,omitempty"`

	// HostType is "publisher" or "repository".
	HostType string `json:"host_type,omitempty" yaml:"host_type,omitempty"`

	// Version is the manuscript version, e.g. "publishedVersion".
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ResolvedArticle is a record with a known open-access download location.
type ResolvedArticle struct {
	Record   ArticleRecord
	Location OALocation
}

// DropReason explains why a sampled record was not harvestable.
type DropReason string

const (
	// DropNoIdentifiers means neither a DOI nor a PMC ID could be found.
	DropNoIdentifiers DropReason = "no-identifiers"

	// DropNoOpenAccess means a DOI was known but no open-access copy was
	// found and the record has no PMC ID to fall back on.
	DropNoOpenAccess DropReason = "no-open-access"
)

// DroppedArticle is a sampled record that landed in neither output list.
type DroppedArticle struct {
	Record ArticleRecord
	Reason DropReason
}

// Partition splits a sample into harvest groups. Each sampled record appears
// in exactly one of Resolved, Fallback or Dropped, in sample order.
type Partition struct {
	Resolved []ResolvedArticle
	Fallback []ArticleRecord
	Dropped  []DroppedArticle
}

// Total returns the number of records partitioned.
func (p Partition) Total() int {
	return len(p.Resolved) + len(p.Fallback) + len(p.Dropped)
}

// NormalizeDOI trims whitespace and strips resolver and "doi:" prefixes.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	if len(doi) >= 4 && strings.EqualFold(doi[:4], "doi:") {
		doi = strings.TrimSpace(doi[4:])
	}
	return doi
}

// NormalizePMCID trims whitespace and ensures the "PMC" prefix on a numeric ID.
func NormalizePMCID(pmcid string) string {
	pmcid = strings.TrimSpace(pmcid)
	if pmcid == "" {
		return ""
	}
	if len(pmcid) >= 3 && strings.EqualFold(pmcid[:3], "pmc") {
		return "PMC" + pmcid[3:]
	}
	return "PMC" + pmcid
}
