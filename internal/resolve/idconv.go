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

// DefaultIDConvURL is the NCBI PMC ID Converter endpoint.
const DefaultIDConvURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"

// IDConvClient resolves PubMed IDs through the NCBI PMC ID Converter.
type IDConvClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	tool       string
	email      string
	apiKey     string
}

var _ IdentifierResolver = (*IDConvClient)(nil)

// IDConvOption configures an IDConvClient.
type IDConvOption func(*IDConvClient)

// WithIDConvBaseURL overrides the endpoint (for testing or mirrors).
func WithIDConvBaseURL(u string) IDConvOption {
	return func(c *IDConvClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithIDConvHTTPClient sets the HTTP client.
func WithIDConvHTTPClient(hc *http.Client) IDConvOption {
	return func(c *IDConvClient) { c.httpClient = hc }
}

// WithIDConvRate sets the request rate in requests per second.
func WithIDConvRate(perSecond float64) IDConvOption {
	return func(c *IDConvClient) { c.limiter = httputil.NewLimiter(perSecond) }
}

// WithIDConvContact sets the tool name and contact email NCBI asks callers to send.
func WithIDConvContact(tool, email string) IDConvOption {
	return func(c *IDConvClient) {
		c.tool = tool
		c.email = email
	}
}

// WithNCBIAPIKey sets the NCBI API key.
func WithNCBIAPIKey(key string) IDConvOption {
	return func(c *IDConvClient) { c.apiKey = key }
}

// NewIDConvClient creates an ID Converter client.
func NewIDConvClient(opts ...IDConvOption) *IDConvClient {
	c := &IDConvClient{
		httpClient: &http.Client{Timeout: types.DefaultTimeout},
		limiter:    httputil.NewLimiter(types.DefaultIDConvRate),
		baseURL:    DefaultIDConvURL,
		tool:       types.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// idString decodes an identifier the service may send as a string or a number.
type idString string

func (s *idString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = idString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = idString(n.String())
		return nil
	}
	return fmt.Errorf("cannot decode %s as identifier", string(data))
}

type idconvResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Records []idconvRecord `json:"records"`
}

type idconvRecord struct {
	PMID   idString `json:"pmid"`
	PMCID  idString `json:"pmcid"`
	DOI    string   `json:"doi"`
	Status string   `json:"status"`
	ErrMsg string   `json:"errmsg"`
}

// ResolveIdentifier looks up the PMC ID and DOI for pmid. It returns
// ErrNotFound when the service knows neither.
func (c *IDConvClient) ResolveIdentifier(ctx context.Context, pmid string) (types.Identifiers, error) {
	params := url.Values{
		"ids":    {pmid},
		"idtype": {"pmid"},
		"format": {"json"},
	}
	if c.tool != "" {
		params.Set("tool", c.tool)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	resp, err := get(ctx, c.httpClient, c.limiter, c.baseURL+"?"+params.Encode(), c.tool)
	if err != nil {
		return types.Identifiers{}, fmt.Errorf("requesting ID Converter mapping for %s: %w", pmid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Identifiers{}, &APIError{Service: "ID Converter", StatusCode: resp.StatusCode, Key: pmid}
	}

	var body idconvResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.Identifiers{}, fmt.Errorf("%w: parsing ID Converter response for %s: %v", ErrInvalidResponse, pmid, err)
	}
	if body.Status != "" && body.Status != "ok" {
		return types.Identifiers{}, fmt.Errorf("%w: ID Converter status %q: %s", ErrInvalidResponse, body.Status, body.Message)
	}

	for _, rec := range body.Records {
		if string(rec.PMID) != "" && string(rec.PMID) != pmid {
			continue
		}
		if rec.Status == "error" {
			return types.Identifiers{}, fmt.Errorf("%w: %s (%s)", ErrNotFound, pmid, strings.TrimSpace(rec.ErrMsg))
		}
		ids := types.Identifiers{
			PMCID: types.NormalizePMCID(string(rec.PMCID)),
			DOI:   types.NormalizeDOI(rec.DOI),
		}
		if ids.PMCID == "" && ids.DOI == "" {
			break
		}
		return ids, nil
	}
	return types.Identifiers{}, fmt.Errorf("%w: %s", ErrNotFound, pmid)
}
