// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/harvest-lists/internal/httputil"
	"github.com/pdiddy/harvest-lists/pkg/types"
)

// DefaultUnpaywallURL is the Unpaywall v2 REST endpoint.
const DefaultUnpaywallURL = "https://api.unpaywall.org/v2/"

// UnpaywallClient finds open-access copies of DOIs through Unpaywall.
type UnpaywallClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
}

var _ OpenAccessResolver = (*UnpaywallClient)(nil)

// UnpaywallOption configures an UnpaywallClient.
type UnpaywallOption func(*UnpaywallClient)

// WithUnpaywallBaseURL overrides the endpoint (for testing).
func WithUnpaywallBaseURL(u string) UnpaywallOption {
	return func(c *UnpaywallClient) {
		if u == "" {
			return
		}
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithUnpaywallHTTPClient sets the HTTP client.
func WithUnpaywallHTTPClient(hc *http.Client) UnpaywallOption {
	return func(c *UnpaywallClient) { c.httpClient = hc }
}

// WithUnpaywallRate sets the request rate in requests per second.
func WithUnpaywallRate(perSecond float64) UnpaywallOption {
	return func(c *UnpaywallClient) { c.limiter = httputil.NewLimiter(perSecond) }
}

// WithUnpaywallUserAgent sets the User-Agent header.
func WithUnpaywallUserAgent(ua string) UnpaywallOption {
	return func(c *UnpaywallClient) { c.userAgent = ua }
}

// NewUnpaywallClient creates an Unpaywall client.
func NewUnpaywallClient(opts ...UnpaywallOption) *UnpaywallClient {
	c := &UnpaywallClient{
		httpClient: &http.Client{Timeout: types.DefaultTimeout},
		limiter:    httputil.NewLimiter(types.DefaultUnpaywallRate),
		baseURL:    DefaultUnpaywallURL,
		userAgent:  types.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// unpaywallResponse captures the fields we need from an Unpaywall record.
type unpaywallResponse struct {
	DOI            string             `json:"doi"`
	Title          string             `json:"title"`
	IsOA           bool               `json:"is_oa"`
	BestOALocation *unpaywallLocation `json:"best_oa_location"`

	// Error responses carry these instead of a record.
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type unpaywallLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	License   string `json:"license"`
	HostType  string `json:"host_type"`
	Version   string `json:"version"`
}

// ResolveOpenAccess returns the best open-access location for doi. It returns
// (nil, nil) when Unpaywall knows the DOI but lists no usable location, and
// ErrNotFound when Unpaywall does not know the DOI at all.
func (c *UnpaywallClient) ResolveOpenAccess(ctx context.Context, doi, email string) (*types.OALocation, error) {
	if email == "" {
		return nil, fmt.Errorf("unpaywall requires a contact email")
	}

	apiURL := c.baseURL + escapeDOI(doi) + "?" + url.Values{"email": {email}}.Encode()
	resp, err := get(ctx, c.httpClient, c.limiter, apiURL, c.userAgent)
	if err != nil {
		return nil, fmt.Errorf("requesting Unpaywall record for %s: %w", doi, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doi)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Service: "Unpaywall", StatusCode: resp.StatusCode, Key: doi}
	}

	var body unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: parsing Unpaywall response for %s: %v", ErrInvalidResponse, doi, err)
	}
	if body.Error {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, doi, body.Message)
	}

	loc := body.BestOALocation
	if loc == nil {
		return nil, nil
	}
	download := loc.URLForPDF
	if download == "" {
		download = loc.URL
	}
	if download == "" {
		return nil, nil
	}
	return &types.OALocation{
		URL:        download,
		LandingURL: loc.URL,
		Title:      strings.TrimSpace(body.Title),
		License:    loc.License,
		HostType:   loc.HostType,
		Version:    loc.Version,
	}, nil
}

// escapeDOI escapes each path segment of a DOI while keeping its slashes.
func escapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
