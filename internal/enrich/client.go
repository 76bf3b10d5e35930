// Package enrich extracts skill terms from ad text via the JobTech
// enrichment annotator. Enrichment is best-effort: a failed call
// degrades to an empty result instead of failing the ingest batch.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// DefaultBaseURL is the public enrichment API endpoint.
const DefaultBaseURL = "https://jobad-enrichments-api.jobtechdev.se"

// DefaultThreshold drops low-confidence candidate terms.
const DefaultThreshold = 0.7

// DefaultBatchSize bounds documents per enrichment request.
const DefaultBatchSize = 100

// Client calls the enrichment annotator.
type Client struct {
	baseURL   string
	threshold float64
	batchSize int
	doer      pipeline.Doer
	logger    *zap.Logger
}

// Config controls endpoint, confidence threshold, and batch size.
type Config struct {
	BaseURL   string
	Threshold float64
	BatchSize int
}

// NewClient creates a Client with defaults applied.
func NewClient(doer pipeline.Doer, cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		threshold: cfg.Threshold,
		batchSize: cfg.BatchSize,
		doer:      doer,
		logger:    logger,
	}
}

type documentInput struct {
	DocID       string `json:"doc_id"`
	DocHeadline string `json:"doc_headline"`
	DocText     string `json:"doc_text"`
}

type enrichRequest struct {
	DocumentsInput   []documentInput `json:"documents_input"`
	IncludeTermsInfo bool            `json:"include_terms_info"`
}

type candidate struct {
	Term       string  `json:"concept_label"`
	Prediction float64 `json:"prediction"`
}

type enrichedDocument struct {
	DocID              string `json:"doc_id"`
	EnrichedCandidates struct {
		Competencies []candidate `json:"competencies"`
		Traits       []candidate `json:"traits"`
		Occupations  []candidate `json:"occupations"`
	} `json:"enriched_candidates"`
}

// Extract annotates the given ads and returns skill records above the
// confidence threshold. Ads without description text are skipped. On
// any transport or decode failure the whole call returns an empty
// slice and a nil error; the failure is logged, not propagated.
func (c *Client) Extract(ctx context.Context, ads []pipeline.JobAd) []pipeline.SkillRecord {
	docs := make([]documentInput, 0, len(ads))
	for _, ad := range ads {
		if ad.DescriptionText == "" {
			continue
		}
		docs = append(docs, documentInput{
			DocID:       ad.AdID,
			DocHeadline: ad.Headline,
			DocText:     ad.DescriptionText,
		})
	}

	var records []pipeline.SkillRecord
	for start := 0; start < len(docs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch, err := c.extractBatch(ctx, docs[start:end])
		if err != nil {
			c.logger.Warn("enrichment batch failed, continuing without skills",
				zap.Int("documents", end-start), zap.Error(err))
			continue
		}
		records = append(records, batch...)
	}
	return records
}

func (c *Client) extractBatch(ctx context.Context, docs []documentInput) ([]pipeline.SkillRecord, error) {
	body, err := json.Marshal(enrichRequest{DocumentsInput: docs, IncludeTermsInfo: false})
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment request: %w", err)
	}

	endpoint := c.baseURL + "/enrichtextdocumentsbinary"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post enrichment batch: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close enrichment response body", zap.Error(cerr))
		}
	}()

	var enriched []enrichedDocument
	if err := json.NewDecoder(resp.Body).Decode(&enriched); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}

	var records []pipeline.SkillRecord
	for _, doc := range enriched {
		records = append(records, c.collect(doc.DocID, doc.EnrichedCandidates.Competencies, pipeline.SkillCompetency)...)
		records = append(records, c.collect(doc.DocID, doc.EnrichedCandidates.Traits, pipeline.SkillTrait)...)
		records = append(records, c.collect(doc.DocID, doc.EnrichedCandidates.Occupations, pipeline.SkillOccupation)...)
	}
	return records, nil
}

func (c *Client) collect(adID string, candidates []candidate, skillType pipeline.SkillType) []pipeline.SkillRecord {
	var out []pipeline.SkillRecord
	for _, cand := range candidates {
		if cand.Prediction < c.threshold {
			continue
		}
		out = append(out, pipeline.SkillRecord{
			AdID:        adID,
			Term:        cand.Term,
			Type:        skillType,
			Probability: cand.Prediction,
		})
	}
	return out
}
