package scb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// DefaultBaseURL points at the English-language PXWeb database root.
const DefaultBaseURL = "https://api.scb.se/OV0104/v1/doris/en/ssd"

// DefaultSalaryTable is the regional salary-by-occupation table.
const DefaultSalaryTable = "/AM/AM0110/AM0110A/LonYrkeRegion4AN"

// DefaultDispersionTable is the salary dispersion table, which carries
// percentile measures by occupation and gender.
const DefaultDispersionTable = "/AM/AM0110/AM0110A/LonSpridSektorYrk4A"

// DefaultMaxCells is SCB's per-request cell ceiling.
const DefaultMaxCells = 150000

// Measure codes exposed by the salary table.
const (
	MeasureMonthlySalary = "000007AS"
	MeasureBasicSalary   = "000007AQ"
	MeasureSalaryRatio   = "000007AR"
	MeasureNumEmployees  = "000007AP"
)

// Measure codes exposed by the dispersion table.
const (
	MeasureDispersionMean = "000000NV"
	MeasurePercentile10   = "000000O0"
	MeasureMedianSalary   = "000000O1"
	MeasurePercentile90   = "000000O2"
)

// Client fetches cube data from the PXWeb API. Raw payloads are archived
// to the blob store before decoding so a bad decode can be replayed.
type Client struct {
	baseURL string
	table   string
	doer    pipeline.Doer
	blobs   pipeline.BlobStore
	clock   pipeline.Clock
	logger  *zap.Logger
}

// Config controls the client's endpoint and archive paths.
type Config struct {
	BaseURL string
	Table   string
}

// NewClient creates a Client. blobs may be nil to skip raw archiving.
func NewClient(doer pipeline.Doer, blobs pipeline.BlobStore, clock pipeline.Clock, cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Table == "" {
		cfg.Table = DefaultSalaryTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		table:   cfg.Table,
		doer:    doer,
		blobs:   blobs,
		clock:   clock,
		logger:  logger,
	}
}

// WithTable returns a client pointed at another table on the same
// endpoint, sharing the transport, archive, and clock.
func (c *Client) WithTable(table string) *Client {
	clone := *c
	clone.table = table
	return &clone
}

// TableMetadata holds the variable lists advertised by the table.
type TableMetadata struct {
	Title     string          `json:"title"`
	Variables []TableVariable `json:"variables"`
}

// TableVariable is one dimension with its valid codes.
type TableVariable struct {
	Code        string   `json:"code"`
	Text        string   `json:"text"`
	Values      []string `json:"values"`
	ValueTexts  []string `json:"valueTexts"`
	Elimination bool     `json:"elimination"`
	Time        bool     `json:"time"`
}

// Metadata fetches the table's dimension metadata.
func (c *Client) Metadata(ctx context.Context) (TableMetadata, error) {
	url := c.baseURL + c.table
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TableMetadata{}, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return TableMetadata{}, fmt.Errorf("fetch table metadata: %w", err)
	}
	defer closeBody(resp, c.logger)

	var meta TableMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return TableMetadata{}, fmt.Errorf("decode table metadata: %w", err)
	}
	return meta, nil
}

// FetchCube posts one query document and returns the decoded cube cells
// together with the dimension label lookup.
func (c *Client) FetchCube(ctx context.Context, batch QueryBatch) ([]pipeline.CubeCell, Labels, error) {
	body, err := json.Marshal(batch.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal query document: %w", err)
	}

	url := c.baseURL + c.table
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build cube request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("posting cube query",
		zap.Int("occupations", len(batch.Occupations)),
		zap.Int("years", len(batch.Years)),
		zap.Int("cells", batch.Cells))

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch cube: %w", err)
	}
	defer closeBody(resp, c.logger)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read cube response: %w", err)
	}

	c.archive(ctx, batch, raw)

	cells, labels, err := DecodeStat2(raw)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Debug("decoded cube", zap.Int("cells", len(cells)))
	return cells, labels, nil
}

func (c *Client) archive(ctx context.Context, batch QueryBatch, raw []byte) {
	if c.blobs == nil {
		return
	}
	ts := time.Now().UTC()
	if c.clock != nil {
		ts = c.clock.Now()
	}
	path := fmt.Sprintf("raw/scb/%s/occ_%s_%s.json",
		ts.Format("2006-01-02"), firstOr(batch.Occupations, "all"), ts.Format("150405"))
	if _, err := c.blobs.PutObject(ctx, path, "application/json", raw); err != nil {
		// Archiving is best-effort; the decode path owns correctness.
		c.logger.Warn("archive raw cube response failed", zap.String("path", path), zap.Error(err))
	}
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Debug("close response body", zap.Error(err))
	}
}
