// Package taxonomy fetches classification reference data from the
// JobTech Taxonomy API and reconciles source codes onto canonical ones.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// DefaultBaseURL is the public taxonomy endpoint (no API key needed).
const DefaultBaseURL = "https://taxonomy.api.jobtechdev.se/v1/taxonomy"

// Concept is one taxonomy entry: a JobTech concept ID joined with its
// SSYK 2012 code and display label. Region concepts carry the county
// code instead of an SSYK code.
type Concept struct {
	ConceptID  string `json:"id"`
	SSYKCode   string `json:"ssyk-code-2012"`
	CountyCode string `json:"national-nuts-level-3-code-2019"`
	Label      string `json:"preferred-label"`
	Type       string `json:"type"`
}

// Client fetches reference data. It is used once per pipeline run; the
// reconciler caches everything for the run's duration.
type Client struct {
	baseURL string
	doer    pipeline.Doer
	logger  *zap.Logger
}

// NewClient creates a taxonomy Client.
func NewClient(doer pipeline.Doer, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, doer: doer, logger: logger}
}

// SSYKGroups fetches all four SSYK hierarchy levels.
func (c *Client) SSYKGroups(ctx context.Context) ([]Concept, error) {
	q := url.Values{}
	q.Set("type", "ssyk-level-1 ssyk-level-2 ssyk-level-3 ssyk-level-4")
	return c.concepts(ctx, "/specific/concepts/ssyk", q)
}

// Regions fetches region concepts.
func (c *Client) Regions(ctx context.Context) ([]Concept, error) {
	q := url.Values{}
	q.Set("type", "region")
	return c.concepts(ctx, "/main/concepts", q)
}

func (c *Client) concepts(ctx context.Context, path string, query url.Values) ([]Concept, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build taxonomy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch taxonomy concepts: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close taxonomy response", zap.Error(cerr))
		}
	}()

	var concepts []Concept
	if err := json.NewDecoder(resp.Body).Decode(&concepts); err != nil {
		return nil, fmt.Errorf("decode taxonomy concepts: %w", err)
	}
	c.logger.Debug("fetched taxonomy concepts", zap.String("path", path), zap.Int("count", len(concepts)))
	return concepts, nil
}
