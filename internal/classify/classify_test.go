// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/harvest-lists/internal/httputil"
	"github.com/pdiddy/harvest-lists/internal/resolve"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// fakeIDs answers identifier lookups from a map. Missing keys are not found.
type fakeIDs struct {
	answers map[string]types.Identifiers
	errs    map[string]error
	all     error
	calls   sync.Map
}

func (f *fakeIDs) ResolveIdentifier(_ context.Context, pmid string) (types.Identifiers, error) {
	f.calls.Store(pmid, true)
	if f.all != nil {
		return types.Identifiers{}, f.all
	}
	if err, ok := f.errs[pmid]; ok {
		return types.Identifiers{}, err
	}
	if ids, ok := f.answers[pmid]; ok {
		return ids, nil
	}
	return types.Identifiers{}, fmt.Errorf("%w: %s", resolve.ErrNotFound, pmid)
}

func (f *fakeIDs) called(pmid string) bool {
	_, ok := f.calls.Load(pmid)
	return ok
}

// fakeOA answers open-access lookups from a map. Missing keys have no copy.
type fakeOA struct {
	locations map[string]types.OALocation
	errs      map[string]error
	all       error
	email     atomic.Value
}

func (f *fakeOA) ResolveOpenAccess(_ context.Context, doi, email string) (*types.OALocation, error) {
	f.email.Store(email)
	if f.all != nil {
		return nil, f.all
	}
	if err, ok := f.errs[doi]; ok {
		return nil, err
	}
	if loc, ok := f.locations[doi]; ok {
		return &loc, nil
	}
	return nil, nil
}

var (
	errUnreachable = fmt.Errorf("%w: dial tcp: lookup api.example: no such host", resolve.ErrUnreachable)
	errTimeout     = fmt.Errorf("request: %w", httputil.ErrTimeout)
)

func TestClassifyDecisionPolicy(t *testing.T) {
	ids := &fakeIDs{answers: map[string]types.Identifiers{
		"2": {DOI: "10.1/two", PMCID: "PMC2"},
		"3": {PMCID: "PMC3"},
		"4": {DOI: "10.1/four"},
	}}
	oa := &fakeOA{locations: map[string]types.OALocation{
		"10.1/one": {URL: "https://oa/one.pdf", Title: "One"},
		"10.1/two": {URL: "https://oa/two.pdf"},
	}}
	c := New(ids, oa, Options{Email: "me@example.com", Workers: 2})

	sample := []types.ArticleRecord{
		{PMID: "1", DOI: "10.1/one"}, // DOI supplied, OA found
		{PMID: "2"},                  // resolved DOI, OA found
		{PMID: "3"},                  // resolved PMC only
		{PMID: "4"},                  // resolved DOI, no OA, no PMC
		{PMID: "5"},                  // nothing known
		{PMID: "6", DOI: "10.1/closed", PMCID: "PMC6"}, // DOI + PMC, OA fails
		{PMID: "7", DOI: "10.1/closed"},                // DOI only, OA fails
	}

	p, err := c.Classify(context.Background(), sample)
	require.NoError(t, err)

	require.Len(t, p.Resolved, 2)
	assert.Equal(t, "1", p.Resolved[0].Record.PMID)
	assert.Equal(t, "https://oa/one.pdf", p.Resolved[0].Location.URL)
	assert.Equal(t, "One", p.Resolved[0].Location.Title)
	assert.Equal(t, types.ArticleRecord{PMID: "2", DOI: "10.1/two", PMCID: "PMC2"}, p.Resolved[1].Record)

	assert.Equal(t, []types.ArticleRecord{
		{PMID: "3", PMCID: "PMC3"},
		{PMID: "6", DOI: "10.1/closed", PMCID: "PMC6"},
	}, p.Fallback)

	assert.Equal(t, []types.DroppedArticle{
		{Record: types.ArticleRecord{PMID: "4", DOI: "10.1/four"}, Reason: types.DropNoOpenAccess},
		{Record: types.ArticleRecord{PMID: "5"}, Reason: types.DropNoIdentifiers},
		{Record: types.ArticleRecord{PMID: "7", DOI: "10.1/closed"}, Reason: types.DropNoOpenAccess},
	}, p.Dropped)

	assert.False(t, ids.called("1"), "records with a DOI skip identifier resolution")
	assert.False(t, ids.called("6"))
	assert.True(t, ids.called("2"))
	assert.Equal(t, "me@example.com", oa.email.Load())
}

func TestClassifySuppliedIdentifiersWin(t *testing.T) {
	ids := &fakeIDs{answers: map[string]types.Identifiers{"1": {PMCID: "PMC999", DOI: "10.1/x"}}}
	c := New(ids, &fakeOA{}, Options{})

	p, err := c.Classify(context.Background(), []types.ArticleRecord{{PMID: "1", PMCID: "PMC1"}})
	require.NoError(t, err)
	require.Len(t, p.Fallback, 1)
	assert.Equal(t, types.ArticleRecord{PMID: "1", PMCID: "PMC1", DOI: "10.1/x"}, p.Fallback[0])
}

func TestClassifySingleFailuresDoNotAbort(t *testing.T) {
	ids := &fakeIDs{
		answers: map[string]types.Identifiers{"3": {DOI: "10.1/three"}},
		errs: map[string]error{
			"1": &resolve.APIError{Service: "ID Converter", StatusCode: 500, Key: "1"},
			"2": fmt.Errorf("%w: bad json", resolve.ErrInvalidResponse),
		},
	}
	oa := &fakeOA{errs: map[string]error{"10.1/three": errTimeout}}
	c := New(ids, oa, Options{})

	sample := []types.ArticleRecord{{PMID: "1"}, {PMID: "2"}, {PMID: "3", PMCID: "PMC3"}}
	p, err := c.Classify(context.Background(), sample)
	require.NoError(t, err)

	assert.Empty(t, p.Resolved)
	assert.Equal(t, []types.ArticleRecord{{PMID: "3", PMCID: "PMC3", DOI: "10.1/three"}}, p.Fallback)
	assert.Len(t, p.Dropped, 2)
}

func TestClassifyAbortsWhenServiceUnreachable(t *testing.T) {
	sample := make([]types.ArticleRecord, 50)
	for i := range sample {
		sample[i] = types.ArticleRecord{PMID: strconv.Itoa(i)}
	}

	ids := &fakeIDs{all: errUnreachable}
	c := New(ids, &fakeOA{}, Options{Workers: 3, AbortAfter: 5})

	_, err := c.Classify(context.Background(), sample)
	require.Error(t, err)
	assert.True(t, IsServiceUnavailable(err))
	assert.ErrorIs(t, err, resolve.ErrUnreachable)
	assert.Contains(t, err.Error(), "identifier service")
}

func TestClassifyAbortsSmallPassWhenEveryCallUnreachable(t *testing.T) {
	oa := &fakeOA{all: errUnreachable}
	c := New(&fakeIDs{}, oa, Options{AbortAfter: 10})

	sample := []types.ArticleRecord{{PMID: "1", DOI: "10.1/a", PMCID: "PMC1"}, {PMID: "2", DOI: "10.1/b"}}
	_, err := c.Classify(context.Background(), sample)
	require.Error(t, err)
	assert.True(t, IsServiceUnavailable(err))
	assert.Contains(t, err.Error(), "open-access service")
}

func TestClassifyToleratesPartialOutage(t *testing.T) {
	oa := &fakeOA{
		locations: map[string]types.OALocation{
			"10.1/ok1": {URL: "https://oa/ok1.pdf"},
			"10.1/ok2": {URL: "https://oa/ok2.pdf"},
			"10.1/ok3": {URL: "https://oa/ok3.pdf"},
		},
		errs: map[string]error{
			"10.1/a": errUnreachable, "10.1/b": errUnreachable, "10.1/c": errUnreachable,
		},
	}
	// One worker keeps the lookups in sample order, so no two failures are adjacent.
	c := New(&fakeIDs{}, oa, Options{Workers: 1, AbortAfter: 2})

	sample := []types.ArticleRecord{
		{PMID: "0", DOI: "10.1/ok1"},
		{PMID: "1", DOI: "10.1/a"},
		{PMID: "2", DOI: "10.1/ok2"},
		{PMID: "3", DOI: "10.1/b"},
		{PMID: "4", DOI: "10.1/ok3"},
		{PMID: "5", DOI: "10.1/c", PMCID: "PMC5"},
	}
	p, err := c.Classify(context.Background(), sample)
	require.NoError(t, err)
	assert.Len(t, p.Resolved, 3)
	assert.Len(t, p.Fallback, 1)
	assert.Len(t, p.Dropped, 2)
}

// failingAfterOA answers its first lookup, then reports every later one as
// unreachable.
type failingAfterOA struct {
	calls atomic.Int32
}

func (f *failingAfterOA) ResolveOpenAccess(_ context.Context, doi, _ string) (*types.OALocation, error) {
	if f.calls.Add(1) == 1 {
		return &types.OALocation{URL: "https://oa/" + doi}, nil
	}
	return nil, errUnreachable
}

func TestClassifyAbortsOutageAfterEarlyAnswer(t *testing.T) {
	sample := make([]types.ArticleRecord, 850)
	for i := range sample {
		sample[i] = types.ArticleRecord{PMID: strconv.Itoa(i), DOI: "10.1/" + strconv.Itoa(i)}
	}
	oa := &failingAfterOA{}
	c := New(&fakeIDs{}, oa, Options{Workers: 1, AbortAfter: 5})

	_, err := c.Classify(context.Background(), sample)
	require.Error(t, err)
	assert.True(t, IsServiceUnavailable(err))
	assert.ErrorIs(t, err, resolve.ErrUnreachable)

	var unavailable *ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "open-access service", unavailable.Service)
	assert.Equal(t, 5, unavailable.Failures)
	assert.LessOrEqual(t, oa.calls.Load(), int32(6), "the pass stops once the streak is reached")
}

// cachedOA answers the DOIs in hits locally and reports every other lookup as
// unreachable.
type cachedOA struct {
	hits map[string]bool
}

func (f *cachedOA) ResolveOpenAccess(ctx context.Context, doi, _ string) (*types.OALocation, error) {
	if f.hits[doi] {
		resolve.MarkLocal(ctx)
		return &types.OALocation{URL: "https://cache/" + doi}, nil
	}
	return nil, errUnreachable
}

func TestClassifyLocalAnswersDoNotCountAsServiceAnswers(t *testing.T) {
	t.Run("streak", func(t *testing.T) {
		sample := make([]types.ArticleRecord, 20)
		hits := map[string]bool{}
		for i := range sample {
			doi := "10.1/" + strconv.Itoa(i)
			sample[i] = types.ArticleRecord{PMID: strconv.Itoa(i), DOI: doi}
			if i%2 == 0 {
				hits[doi] = true
			}
		}
		c := New(&fakeIDs{}, &cachedOA{hits: hits}, Options{Workers: 1, AbortAfter: 5})

		_, err := c.Classify(context.Background(), sample)
		require.Error(t, err)
		assert.True(t, IsServiceUnavailable(err))
		assert.Contains(t, err.Error(), "open-access service")
	})

	t.Run("small pass", func(t *testing.T) {
		oa := &cachedOA{hits: map[string]bool{"10.1/a": true}}
		c := New(&fakeIDs{}, oa, Options{AbortAfter: 10})

		sample := []types.ArticleRecord{
			{PMID: "1", DOI: "10.1/a"},
			{PMID: "2", DOI: "10.1/b"},
			{PMID: "3", DOI: "10.1/c"},
		}
		_, err := c.Classify(context.Background(), sample)
		require.Error(t, err)
		assert.True(t, IsServiceUnavailable(err))
	})

	t.Run("only local answers", func(t *testing.T) {
		oa := &cachedOA{hits: map[string]bool{"10.1/a": true, "10.1/b": true}}
		c := New(&fakeIDs{}, oa, Options{})

		sample := []types.ArticleRecord{{PMID: "1", DOI: "10.1/a"}, {PMID: "2", DOI: "10.1/b"}}
		p, err := c.Classify(context.Background(), sample)
		require.NoError(t, err)
		assert.Len(t, p.Resolved, 2)
	})
}

func TestClassifyTimeoutsDoNotResetStreak(t *testing.T) {
	oa := &fakeOA{errs: map[string]error{
		"10.1/a": errUnreachable,
		"10.1/t": errTimeout,
		"10.1/b": errUnreachable,
	}}
	c := New(&fakeIDs{}, oa, Options{Workers: 1, AbortAfter: 2})

	sample := []types.ArticleRecord{
		{PMID: "1", DOI: "10.1/a"},
		{PMID: "2", DOI: "10.1/t"},
		{PMID: "3", DOI: "10.1/b"},
		{PMID: "4", DOI: "10.1/ok"},
	}
	_, err := c.Classify(context.Background(), sample)
	require.Error(t, err)
	assert.True(t, IsServiceUnavailable(err))
}

// slowOA tracks how many lookups run at once.
type slowOA struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowOA) ResolveOpenAccess(_ context.Context, doi, _ string) (*types.OALocation, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return &types.OALocation{URL: "https://oa/" + doi}, nil
}

func TestClassifyBoundsConcurrency(t *testing.T) {
	sample := make([]types.ArticleRecord, 40)
	for i := range sample {
		sample[i] = types.ArticleRecord{PMID: strconv.Itoa(i), DOI: "10.1/" + strconv.Itoa(i)}
	}
	oa := &slowOA{}
	c := New(&fakeIDs{}, oa, Options{Workers: 3})

	p, err := c.Classify(context.Background(), sample)
	require.NoError(t, err)
	assert.Len(t, p.Resolved, 40)
	assert.LessOrEqual(t, oa.peak.Load(), int32(3))

	for i, r := range p.Resolved {
		assert.Equal(t, strconv.Itoa(i), r.Record.PMID, "results keep sample order")
	}
}

func TestClassifyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(&fakeIDs{}, &fakeOA{}, Options{})
	_, err := c.Classify(ctx, []types.ArticleRecord{{PMID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyPartitionInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 0))
	ids := &fakeIDs{answers: map[string]types.Identifiers{}}
	oa := &fakeOA{locations: map[string]types.OALocation{}}

	sample := make([]types.ArticleRecord, 300)
	for i := range sample {
		pmid := strconv.Itoa(i)
		rec := types.ArticleRecord{PMID: pmid}
		if rng.IntN(2) == 0 {
			rec.DOI = "10.1/" + pmid
		}
		if rng.IntN(2) == 0 {
			rec.PMCID = "PMC" + pmid
		}
		if rng.IntN(3) == 0 {
			ids.answers[pmid] = types.Identifiers{DOI: "10.1/" + pmid}
		}
		if rng.IntN(2) == 0 {
			oa.locations["10.1/"+pmid] = types.OALocation{URL: "https://oa/" + pmid}
		}
		sample[i] = rec
	}

	p, err := New(ids, oa, Options{Workers: 8}).Classify(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, len(sample), p.Total())

	inSample := map[string]bool{}
	for _, r := range sample {
		inSample[r.PMID] = true
	}
	resolved := map[string]bool{}
	for _, r := range p.Resolved {
		assert.True(t, inSample[r.Record.PMID])
		assert.NotEmpty(t, r.Location.URL)
		resolved[r.Record.PMID] = true
	}
	for _, r := range p.Fallback {
		assert.True(t, inSample[r.PMID])
		assert.False(t, resolved[r.PMID], "record %s in both groups", r.PMID)
		assert.NotEmpty(t, r.PMCID)
	}
}
