// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve queries the external services that map PubMed IDs to other
// identifiers and DOIs to open-access locations.
//
// Both clients are safe for concurrent use. Each holds its own rate limiter
// and relies on the http.Client timeout to bound every call. A lookup that
// finds nothing returns ErrNotFound; one that cannot reach the service
// returns an error wrapping ErrUnreachable.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/pdiddy/harvest-lists/internal/httputil"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// IdentifierResolver maps a PubMed ID to its PMC ID and DOI.
type IdentifierResolver interface {
	ResolveIdentifier(ctx context.Context, pmid string) (types.Identifiers, error)
}

// OpenAccessResolver finds the best open-access location of a DOI. The
// email identifies the caller as the service's usage policy requires.
// A nil location with a nil error means the article has no open-access copy.
type OpenAccessResolver interface {
	ResolveOpenAccess(ctx context.Context, doi, email string) (*types.OALocation, error)
}

// get issues a GET for url and returns the response. Transport failures are
// mapped to ErrUnreachable; a timeout stays a plain per-call failure.
func get(ctx context.Context, client *http.Client, limiter *rate.Limiter, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.Do(ctx, client, limiter, req)
	if err != nil {
		if errors.Is(err, httputil.ErrTransport) {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return nil, err
	}
	return resp, nil
}
