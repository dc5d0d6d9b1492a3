// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/harvest-lists/internal/resolve"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// IdentifierResolver serves identifier lookups from the store and falls
// through to the wrapped resolver on a miss. Hits are flagged with
// resolve.MarkLocal.
type IdentifierResolver struct {
	next   resolve.IdentifierResolver
	store  *Store
	logger *slog.Logger
}

var _ resolve.IdentifierResolver = (*IdentifierResolver)(nil)

// WrapIdentifiers returns a caching IdentifierResolver around next.
func WrapIdentifiers(next resolve.IdentifierResolver, store *Store, logger *slog.Logger) *IdentifierResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IdentifierResolver{next: next, store: store, logger: logger}
}

// ResolveIdentifier implements resolve.IdentifierResolver.
func (r *IdentifierResolver) ResolveIdentifier(ctx context.Context, pmid string) (types.Identifiers, error) {
	ids, status, ok, err := r.store.GetIdentifiers(ctx, pmid)
	if err != nil {
		r.logger.Warn("identifier cache read failed", "pmid", pmid, "error", err)
	} else if ok {
		resolve.MarkLocal(ctx)
		if status == StatusNotFound {
			return types.Identifiers{}, fmt.Errorf("%w: %s (cached)", resolve.ErrNotFound, pmid)
		}
		return ids, nil
	}

	ids, err = r.next.ResolveIdentifier(ctx, pmid)
	switch {
	case err == nil:
		r.put(ctx, pmid, ids, StatusFound)
	case resolve.IsNotFound(err):
		r.put(ctx, pmid, types.Identifiers{}, StatusNotFound)
	}
	return ids, err
}

func (r *IdentifierResolver) put(ctx context.Context, pmid string, ids types.Identifiers, status Status) {
	if err := r.store.PutIdentifiers(ctx, pmid, ids, status); err != nil {
		r.logger.Warn("identifier cache write failed", "pmid", pmid, "error", err)
	}
}

// OpenAccessResolver serves open-access lookups from the store and falls
// through to the wrapped resolver on a miss.
type OpenAccessResolver struct {
	next   resolve.OpenAccessResolver
	store  *Store
	logger *slog.Logger
}

var _ resolve.OpenAccessResolver = (*OpenAccessResolver)(nil)

// WrapOpenAccess returns a caching OpenAccessResolver around next.
func WrapOpenAccess(next resolve.OpenAccessResolver, store *Store, logger *slog.Logger) *OpenAccessResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAccessResolver{next: next, store: store, logger: logger}
}

// ResolveOpenAccess implements resolve.OpenAccessResolver.
func (r *OpenAccessResolver) ResolveOpenAccess(ctx context.Context, doi, email string) (*types.OALocation, error) {
	loc, status, ok, err := r.store.GetOpenAccess(ctx, doi)
	if err != nil {
		r.logger.Warn("open-access cache read failed", "doi", doi, "error", err)
	} else if ok {
		resolve.MarkLocal(ctx)
		switch status {
		case StatusFound:
			return loc, nil
		case StatusNone:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %s (cached)", resolve.ErrNotFound, doi)
		}
	}

	loc, err = r.next.ResolveOpenAccess(ctx, doi, email)
	switch {
	case err == nil && loc != nil:
		r.put(ctx, doi, loc, StatusFound)
	case err == nil:
		r.put(ctx, doi, nil, StatusNone)
	case resolve.IsNotFound(err):
		r.put(ctx, doi, nil, StatusNotFound)
	}
	return loc, err
}

func (r *OpenAccessResolver) put(ctx context.Context, doi string, loc *types.OALocation, status Status) {
	if err := r.store.PutOpenAccess(ctx, doi, loc, status); err != nil {
		r.logger.Warn("open-access cache write failed", "doi", doi, "error", err)
	}
}
