// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache memoizes lookup answers in a SQLite database so repeated
// runs over the same field do not query the external services again.
// Only definitive answers are stored: a mapping, an explicit "no open-access
// copy", or a not-found. Transport failures and unexpected statuses are never
// cached.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/harvest-lists/pkg/types"
)

// Status is the cached outcome of one lookup.
type Status string

const (
	StatusFound    Status = "found"
	StatusNone     Status = "none"
	StatusNotFound Status = "not-found"
)

const (
	idTable = "id_lookups"
	oaTable = "oa_lookups"
)

// Store is a SQLite-backed lookup cache. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// One writer at a time keeps concurrent lookups from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS id_lookups (
			pmid TEXT PRIMARY KEY,
			pmcid TEXT NOT NULL DEFAULT '',
			doi TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			updated TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS oa_lookups (
			doi TEXT PRIMARY KEY,
			location TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			updated TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// GetIdentifiers returns the cached answer for pmid. ok is false on a cache miss.
func (s *Store) GetIdentifiers(ctx context.Context, pmid string) (ids types.Identifiers, status Status, ok bool, err error) {
	query, args, err := sq.Select("pmcid", "doi", "status").
		From(idTable).
		Where(sq.Eq{"pmid": pmid}).
		ToSql()
	if err != nil {
		return ids, "", false, fmt.Errorf("building query: %w", err)
	}

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&ids.PMCID, &ids.DOI, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Identifiers{}, "", false, nil
	}
	if err != nil {
		return types.Identifiers{}, "", false, fmt.Errorf("reading identifier cache: %w", err)
	}
	return ids, status, true, nil
}

// PutIdentifiers stores the answer for pmid.
func (s *Store) PutIdentifiers(ctx context.Context, pmid string, ids types.Identifiers, status Status) error {
	query, args, err := sq.Replace(idTable).
		Columns("pmid", "pmcid", "doi", "status", "updated").
		Values(pmid, ids.PMCID, ids.DOI, string(status), now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing identifier cache: %w", err)
	}
	return nil
}

// GetOpenAccess returns the cached answer for doi. loc is non-nil only when
// status is StatusFound. ok is false on a cache miss.
func (s *Store) GetOpenAccess(ctx context.Context, doi string) (loc *types.OALocation, status Status, ok bool, err error) {
	query, args, err := sq.Select("location", "status").
		From(oaTable).
		Where(sq.Eq{"doi": doi}).
		ToSql()
	if err != nil {
		return nil, "", false, fmt.Errorf("building query: %w", err)
	}

	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("reading open-access cache: %w", err)
	}
	if status != StatusFound {
		return nil, status, true, nil
	}

	var l types.OALocation
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		// A corrupt row is treated as a miss and overwritten on the next lookup.
		return nil, "", false, nil
	}
	return &l, status, true, nil
}

// PutOpenAccess stores the answer for doi. loc must be non-nil when status
// is StatusFound.
func (s *Store) PutOpenAccess(ctx context.Context, doi string, loc *types.OALocation, status Status) error {
	raw := ""
	if loc != nil {
		data, err := json.Marshal(loc)
		if err != nil {
			return fmt.Errorf("encoding location: %w", err)
		}
		raw = string(data)
	}

	query, args, err := sq.Replace(oaTable).
		Columns("doi", "location", "status", "updated").
		Values(doi, raw, string(status), now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing open-access cache: %w", err)
	}
	return nil
}

// Counts returns the number of cached identifier and open-access answers.
func (s *Store) Counts(ctx context.Context) (identifiers, openAccess int, err error) {
	for _, c := range []struct {
		table string
		dst   *int
	}{{idTable, &identifiers}, {oaTable, &openAccess}} {
		query, args, err := sq.Select("COUNT(*)").From(c.table).ToSql()
		if err != nil {
			return 0, 0, fmt.Errorf("building count: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dst); err != nil {
			return 0, 0, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	return identifiers, openAccess, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
