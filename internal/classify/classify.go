// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify decides, for every sampled record, which harvest list it
// belongs to.
//
// A record with a DOI is checked for an open-access copy; a record without
// one first has its identifiers resolved from its PubMed ID. Records with an
// open-access location are Resolved, records left with only a PMC ID fall
// back to the PMC list, and everything else is dropped.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/harvest-lists/internal/httputil"
	"github.com/pdiddy/harvest-lists/internal/resolve"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// ServiceUnavailableError aborts a classification pass when a lookup service
// cannot be reached at all. Continuing would silently drop every record.
type ServiceUnavailableError struct {
	Service  string
	Failures int
	Last     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %d consecutive request(s) failed without a response: %v", e.Service, e.Failures, e.Last)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Last }

// IsServiceUnavailable reports whether err is or wraps a *ServiceUnavailableError.
func IsServiceUnavailable(err error) bool {
	var su *ServiceUnavailableError
	return errors.As(err, &su)
}

// Options tunes a Classifier.
type Options struct {
	// Email is passed to the open-access service with every request.
	Email string

	// Workers bounds concurrent record lookups (default 4).
	Workers int

	// AbortAfter is how many consecutive unreachable failures a service may
	// return before the pass aborts (default 5). Answers from a local cache
	// neither count nor reset the run.
	AbortAfter int

	Logger *slog.Logger
}

// Classifier partitions samples using two injected lookup capabilities.
type Classifier struct {
	ids        resolve.IdentifierResolver
	oa         resolve.OpenAccessResolver
	email      string
	workers    int
	abortAfter int
	logger     *slog.Logger
}

// New creates a Classifier.
func New(ids resolve.IdentifierResolver, oa resolve.OpenAccessResolver, opts Options) *Classifier {
	c := &Classifier{
		ids:        ids,
		oa:         oa,
		email:      opts.Email,
		workers:    opts.Workers,
		abortAfter: opts.AbortAfter,
		logger:     opts.Logger,
	}
	if c.workers <= 0 {
		c.workers = types.DefaultWorkers
	}
	if c.abortAfter <= 0 {
		c.abortAfter = types.DefaultAbortAfter
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// outcome is the decision for one record.
type outcome struct {
	kind     outcomeKind
	record   types.ArticleRecord
	location types.OALocation
	reason   types.DropReason
}

type outcomeKind int

const (
	kindDropped outcomeKind = iota
	kindResolved
	kindFallback
)

// Classify looks up every record of sample and returns the partition in
// sample order. Individual lookup failures count as "no result". The pass
// aborts with a *ServiceUnavailableError when a service is unreachable, and
// with the context's error when ctx is cancelled.
func (c *Classifier) Classify(ctx context.Context, sample []types.ArticleRecord) (types.Partition, error) {
	idHealth := &serviceHealth{name: "identifier service", abortAfter: c.abortAfter}
	oaHealth := &serviceHealth{name: "open-access service", abortAfter: c.abortAfter}

	outcomes := make([]outcome, len(sample))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, rec := range sample {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := c.classifyOne(gctx, rec, idHealth, oaHealth)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Partition{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Partition{}, err
	}
	for _, h := range []*serviceHealth{idHealth, oaHealth} {
		if err := h.deadAfterPass(); err != nil {
			return types.Partition{}, err
		}
	}

	var p types.Partition
	for _, out := range outcomes {
		switch out.kind {
		case kindResolved:
			p.Resolved = append(p.Resolved, types.ResolvedArticle{Record: out.record, Location: out.location})
		case kindFallback:
			p.Fallback = append(p.Fallback, out.record)
		default:
			p.Dropped = append(p.Dropped, types.DroppedArticle{Record: out.record, Reason: out.reason})
		}
	}
	return p, nil
}

func (c *Classifier) classifyOne(ctx context.Context, rec types.ArticleRecord, idHealth, oaHealth *serviceHealth) (outcome, error) {
	if !rec.HasDOI() {
		lctx, origin := resolve.WithOrigin(ctx)
		ids, err := c.ids.ResolveIdentifier(lctx, rec.PMID)
		if abort := c.observe(ctx, idHealth, origin, err); abort != nil {
			return outcome{}, abort
		}
		switch {
		case err == nil:
			rec = rec.Merge(ids)
		case resolve.IsNotFound(err):
			c.logger.Debug("no identifier mapping", "pmid", rec.PMID)
		default:
			c.logger.Debug("identifier lookup failed", "pmid", rec.PMID, "error", err)
		}
	}

	if rec.HasDOI() {
		lctx, origin := resolve.WithOrigin(ctx)
		loc, err := c.oa.ResolveOpenAccess(lctx, rec.DOI, c.email)
		if abort := c.observe(ctx, oaHealth, origin, err); abort != nil {
			return outcome{}, abort
		}
		switch {
		case err == nil && loc != nil && loc.URL != "":
			return outcome{kind: kindResolved, record: rec, location: *loc}, nil
		case err != nil && !resolve.IsNotFound(err):
			c.logger.Debug("open-access lookup failed", "doi", rec.DOI, "error", err)
		}
	}

	if rec.HasPMCID() {
		return outcome{kind: kindFallback, record: rec}, nil
	}

	reason := types.DropNoOpenAccess
	if !rec.HasDOI() {
		reason = types.DropNoIdentifiers
	}
	c.logger.Debug("record not harvestable", "pmid", rec.PMID, "reason", reason)
	return outcome{kind: kindDropped, record: rec, reason: reason}, nil
}

// observe records the result of one lookup and returns a non-nil error when
// the pass must stop: the context ended or the service looks dead. Lookups
// answered locally say nothing about the service and are ignored.
func (c *Classifier) observe(ctx context.Context, h *serviceHealth, origin *resolve.Origin, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if origin.Local() {
		return nil
	}
	return h.record(err)
}

// serviceHealth tracks how a service responded during a pass.
type serviceHealth struct {
	name        string
	abortAfter  int
	attempts    atomic.Int64
	unreachable atomic.Int64

	// streak counts unreachable failures since the last answered request.
	streak atomic.Int64
	last   atomic.Value
}

// record classifies err. A *ServiceUnavailableError is returned once the
// service has failed abortAfter times in a row, however many requests it
// answered earlier. Timeouts neither extend nor reset the streak.
func (h *serviceHealth) record(err error) error {
	h.attempts.Add(1)
	if !resolve.IsUnreachable(err) {
		if err == nil || !httputil.IsTimeout(err) {
			h.streak.Store(0)
		}
		return nil
	}

	h.last.Store(errBox{err})
	h.unreachable.Add(1)
	if n := h.streak.Add(1); n >= int64(h.abortAfter) {
		return h.unavailable(n)
	}
	return nil
}

// deadAfterPass reports a dead service for passes too small to reach
// abortAfter: every request that went to the service was unreachable.
func (h *serviceHealth) deadAfterPass() error {
	n := h.unreachable.Load()
	if n > 0 && n == h.attempts.Load() {
		return h.unavailable(n)
	}
	return nil
}

func (h *serviceHealth) unavailable(failures int64) error {
	var last error
	if b, ok := h.last.Load().(errBox); ok {
		last = b.err
	}
	return &ServiceUnavailableError{Service: h.name, Failures: int(failures), Last: last}
}

// errBox gives atomic.Value a single concrete type to store.
type errBox struct{ err error }
