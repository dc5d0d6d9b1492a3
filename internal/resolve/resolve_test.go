// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/harvest-lists/pkg/types"
)

const idconvFoundJSON = `{
  "status": "ok",
  "responseDate": "2026-01-01 00:00:00",
  "records": [
    {"pmcid": "PMC3531190", "pmid": 23193287, "doi": "10.1093/nar/gks1195"}
  ]
}`

const idconvPMCOnlyJSON = `{
  "status": "ok",
  "records": [
    {"pmcid": "PMC100", "pmid": "100"}
  ]
}`

const idconvErrorRecordJSON = `{
  "status": "ok",
  "records": [
    {"pmid": "999", "live": "false", "status": "error", "errmsg": "invalid article id"}
  ]
}`

func newIDConvServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("idtype") != "pmid" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("ids") {
		case "23193287":
			fmt.Fprint(w, idconvFoundJSON)
		case "100":
			fmt.Fprint(w, idconvPMCOnlyJSON)
		case "999":
			fmt.Fprint(w, idconvErrorRecordJSON)
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		case "garbage":
			fmt.Fprint(w, `<html>not json`)
		default:
			fmt.Fprint(w, `{"status":"ok","records":[]}`)
		}
	}))
}

func TestIDConvResolveIdentifier(t *testing.T) {
	ts := newIDConvServer(t)
	defer ts.Close()

	c := NewIDConvClient(
		WithIDConvBaseURL(ts.URL+"/"),
		WithIDConvHTTPClient(ts.Client()),
		WithIDConvRate(0),
		WithIDConvContact("harvest-lists-test", "test@example.com"),
	)

	tests := []struct {
		name     string
		pmid     string
		want     types.Identifiers
		notFound bool
		invalid  bool
	}{
		{name: "numeric pmid in response", pmid: "23193287", want: types.Identifiers{PMCID: "PMC3531190", DOI: "10.1093/nar/gks1195"}},
		{name: "pmc only", pmid: "100", want: types.Identifiers{PMCID: "PMC100"}},
		{name: "error record", pmid: "999", notFound: true},
		{name: "empty records", pmid: "12345", notFound: true},
		{name: "server error", pmid: "500", notFound: false},
		{name: "malformed body", pmid: "garbage", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolveIdentifier(context.Background(), tt.pmid)
			switch {
			case tt.notFound:
				require.Error(t, err)
				assert.True(t, IsNotFound(err))
			case tt.invalid:
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidResponse)
			case tt.want == (types.Identifiers{}):
				require.Error(t, err)
				var apiErr *APIError
				assert.ErrorAs(t, err, &apiErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			if err != nil {
				assert.False(t, IsUnreachable(err))
			}
		})
	}
}

func TestIDConvSendsContactAndKey(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "harvest-lists-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, idconvPMCOnlyJSON)
	}))
	defer ts.Close()

	c := NewIDConvClient(
		WithIDConvBaseURL(ts.URL+"/"),
		WithIDConvHTTPClient(ts.Client()),
		WithIDConvContact("harvest-lists-test", "me@example.com"),
		WithNCBIAPIKey("k123"),
	)
	_, err := c.ResolveIdentifier(context.Background(), "100")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "email=me%40example.com")
	assert.Contains(t, gotQuery, "tool=harvest-lists-test")
	assert.Contains(t, gotQuery, "api_key=k123")
}

const unpaywallOAJSON = `{
  "doi": "10.1038/nature12373",
  "title": "  Nanometre-scale thermometry in a living cell ",
  "is_oa": true,
  "best_oa_location": {
    "url": "https://europepmc.org/articles/pmc4221854",
    "url_for_pdf": "https://europepmc.org/articles/pmc4221854?pdf=render",
    "license": "cc-by",
    "host_type": "repository",
    "version": "acceptedVersion"
  }
}`

const unpaywallLandingOnlyJSON = `{
  "doi": "10.1/landing",
  "title": "Landing only",
  "is_oa": true,
  "best_oa_location": {"url": "https://example.org/landing", "url_for_pdf": null}
}`

const unpaywallClosedJSON = `{
  "doi": "10.1/closed",
  "title": "Closed",
  "is_oa": false,
  "best_oa_location": null
}`

func newUnpaywallServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		doi := strings.TrimPrefix(r.URL.Path, "/v2/")
		switch doi {
		case "10.1038/nature12373":
			fmt.Fprint(w, unpaywallOAJSON)
		case "10.1/landing":
			fmt.Fprint(w, unpaywallLandingOnlyJSON)
		case "10.1/closed":
			fmt.Fprint(w, unpaywallClosedJSON)
		case "10.1/error-body":
			fmt.Fprint(w, `{"error": true, "message": "not a valid doi"}`)
		case "10.1/broken":
			fmt.Fprint(w, `{"doi":`)
		case "10.1/unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": true, "message": "not found"}`)
		}
	}))
}

func newTestUnpaywall(ts *httptest.Server) *UnpaywallClient {
	return NewUnpaywallClient(
		WithUnpaywallBaseURL(ts.URL+"/v2"),
		WithUnpaywallHTTPClient(ts.Client()),
		WithUnpaywallRate(0),
	)
}

func TestUnpaywallResolveOpenAccess(t *testing.T) {
	ts := newUnpaywallServer(t)
	defer ts.Close()
	c := newTestUnpaywall(ts)
	ctx := context.Background()

	loc, err := c.ResolveOpenAccess(ctx, "10.1038/nature12373", "me@example.com")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, types.OALocation{
		URL:        "https://europepmc.org/articles/pmc4221854?pdf=render",
		LandingURL: "https://europepmc.org/articles/pmc4221854",
		Title:      "Nanometre-scale thermometry in a living cell",
		License:    "cc-by",
		HostType:   "repository",
		Version:    "acceptedVersion",
	}, *loc)

	loc, err = c.ResolveOpenAccess(ctx, "10.1/landing", "me@example.com")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "https://example.org/landing", loc.URL)

	loc, err = c.ResolveOpenAccess(ctx, "10.1/closed", "me@example.com")
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestUnpaywallMisses(t *testing.T) {
	ts := newUnpaywallServer(t)
	defer ts.Close()
	c := newTestUnpaywall(ts)
	ctx := context.Background()

	_, err := c.ResolveOpenAccess(ctx, "10.1/unknown", "me@example.com")
	assert.True(t, IsNotFound(err))

	_, err = c.ResolveOpenAccess(ctx, "10.1/error-body", "me@example.com")
	assert.True(t, IsNotFound(err))

	_, err = c.ResolveOpenAccess(ctx, "10.1/broken", "me@example.com")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = c.ResolveOpenAccess(ctx, "10.1/unavailable", "me@example.com")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.False(t, IsUnreachable(err))

	_, err = c.ResolveOpenAccess(ctx, "10.1038/nature12373", "")
	assert.Error(t, err)
}

func TestUnreachableService(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	base := ts.URL
	ts.Close()

	hc := &http.Client{Timeout: time.Second}
	up := NewUnpaywallClient(WithUnpaywallBaseURL(base), WithUnpaywallHTTPClient(hc), WithUnpaywallRate(0))
	_, err := up.ResolveOpenAccess(context.Background(), "10.1/x", "me@example.com")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.False(t, IsNotFound(err))
	assert.True(t, strings.HasPrefix(err.Error(), "requesting Unpaywall record for 10.1/x: "), err.Error())

	ic := NewIDConvClient(WithIDConvBaseURL(base+"/"), WithIDConvHTTPClient(hc), WithIDConvRate(0))
	_, err = ic.ResolveIdentifier(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.True(t, strings.HasPrefix(err.Error(), "requesting ID Converter mapping for 1: "), err.Error())
}

func TestOrigin(t *testing.T) {
	// Without an Origin in the context MarkLocal does nothing.
	MarkLocal(context.Background())

	ctx, origin := WithOrigin(context.Background())
	assert.False(t, origin.Local())
	MarkLocal(ctx)
	assert.True(t, origin.Local())

	_, fresh := WithOrigin(ctx)
	assert.False(t, fresh.Local(), "each lookup gets its own Origin")
}

func TestEscapeDOI(t *testing.T) {
	assert.Equal(t, "10.1000/abc%20def/ghi", escapeDOI("10.1000/abc def/ghi"))
	assert.Equal(t, "10.1002/%28SICI%291097", escapeDOI("10.1002/(SICI)1097"))
}
