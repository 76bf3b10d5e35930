package jobads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// Default endpoints for the historical search and stream APIs.
const (
	DefaultHistoricalURL = "https://historical.api.jobtechdev.se"
	DefaultStreamURL     = "https://jobstream.api.jobtechdev.se"
)

// DefaultPageSize is the largest page the search API serves.
const DefaultPageSize = 100

// DefaultMaxPages bounds a single paginated fetch. Hitting the bound is
// a configuration error, not a truncation point: an unbounded result set
// usually means the date range or filter is wrong.
const DefaultMaxPages = 2000

// Client fetches job advertisements from the employment service APIs.
type Client struct {
	historicalURL string
	streamURL     string
	doer          pipeline.Doer
	logger        *zap.Logger
}

// Config controls the client's endpoints.
type Config struct {
	HistoricalURL string
	StreamURL     string
}

// NewClient creates a Client with defaults applied.
func NewClient(doer pipeline.Doer, cfg Config, logger *zap.Logger) *Client {
	if cfg.HistoricalURL == "" {
		cfg.HistoricalURL = DefaultHistoricalURL
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = DefaultStreamURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		historicalURL: cfg.HistoricalURL,
		streamURL:     cfg.StreamURL,
		doer:          doer,
		logger:        logger,
	}
}

// SearchParams filters a historical fetch. Zero time values omit the
// corresponding bound.
type SearchParams struct {
	PublishedAfter  time.Time
	PublishedBefore time.Time
	OccupationGroup string
	Region          string
	PageSize        int
	MaxPages        int
}

type searchResponse struct {
	Total struct {
		Value int `json:"value"`
	} `json:"total"`
	Hits []adDocument `json:"hits"`
}

// FetchHistorical pages through the search API with offset/limit windows
// and returns all matching ads, deduplicated by ad ID keeping the most
// recently modified record.
func (c *Client) FetchHistorical(ctx context.Context, p SearchParams) ([]pipeline.JobAd, error) {
	limit := p.PageSize
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var ads []pipeline.JobAd
	offset := 0
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, &pipeline.ConfigError{Reason: fmt.Sprintf(
				"historical fetch exceeded %d pages; narrow the date range or filters", maxPages)}
		}

		sr, err := c.searchPage(ctx, p, offset, limit)
		if err != nil {
			return nil, err
		}
		for _, doc := range sr.Hits {
			ads = append(ads, doc.flatten())
		}

		offset += len(sr.Hits)
		if len(sr.Hits) < limit || (sr.Total.Value > 0 && offset >= sr.Total.Value) {
			break
		}
	}

	deduped := dedupe(ads)
	c.logger.Info("historical fetch complete",
		zap.Int("fetched", len(ads)),
		zap.Int("unique", len(deduped)))
	return deduped, nil
}

func (c *Client) searchPage(ctx context.Context, p SearchParams, offset, limit int) (searchResponse, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if !p.PublishedAfter.IsZero() {
		q.Set("published-after", p.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if !p.PublishedBefore.IsZero() {
		q.Set("published-before", p.PublishedBefore.UTC().Format(time.RFC3339))
	}
	if p.OccupationGroup != "" {
		q.Set("occupation-group", p.OccupationGroup)
	}
	if p.Region != "" {
		q.Set("region", p.Region)
	}

	endpoint := c.historicalURL + "/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return searchResponse{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return searchResponse{}, fmt.Errorf("search ads offset=%d: %w", offset, err)
	}
	defer closeBody(resp, c.logger)

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return searchResponse{}, fmt.Errorf("decode search response offset=%d: %w", offset, err)
	}
	return sr, nil
}

// FetchSnapshot downloads every currently published ad from the stream
// API's snapshot endpoint.
func (c *Client) FetchSnapshot(ctx context.Context) ([]pipeline.JobAd, error) {
	return c.streamFetch(ctx, c.streamURL+"/snapshot")
}

// FetchChangesSince returns every ad created, updated, or removed after
// the given position. Removed ads carry the Removed flag so callers can
// soft-delete instead of dropping history.
func (c *Client) FetchChangesSince(ctx context.Context, since time.Time) ([]pipeline.JobAd, error) {
	q := url.Values{}
	q.Set("date", since.UTC().Format("2006-01-02T15:04:05"))
	return c.streamFetch(ctx, c.streamURL+"/stream?"+q.Encode())
}

func (c *Client) streamFetch(ctx context.Context, endpoint string) ([]pipeline.JobAd, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ad stream: %w", err)
	}
	defer closeBody(resp, c.logger)

	var docs []adDocument
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode ad stream: %w", err)
	}

	ads := make([]pipeline.JobAd, 0, len(docs))
	for _, doc := range docs {
		ads = append(ads, doc.flatten())
	}
	return dedupe(ads), nil
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Debug("close response body", zap.Error(err))
	}
}
