// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// The filename is the key and the trimmed file contents are the value.
//
// Recognized keys: unpaywall-email, ncbi-api-key.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Recognized key files.
const (
	KeyUnpaywallEmail = "unpaywall-email"
	KeyNCBIAPIKey     = "ncbi-api-key"
)

// Store maps key names to values.
type Store map[string]string

// Load reads all files in dir. A missing directory yields an empty Store.
// Unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Store{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Store)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "key", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Fill sets *dst to the value of key when *dst is empty. It reports whether
// *dst was changed.
func (s Store) Fill(dst *string, key string) bool {
	if *dst != "" {
		return false
	}
	v, ok := s[key]
	if !ok {
		return false
	}
	*dst = v
	return true
}
