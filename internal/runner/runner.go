// Package runner executes pipeline runs: salary cube ingestion, job ad
// ingestion, and the checkpointed stream poll.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/labor-market-etl/internal/jobads"
	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/scb"
	"github.com/JakeFAU/labor-market-etl/internal/taxonomy"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
	"github.com/JakeFAU/labor-market-etl/internal/transform"
)

// Batch sources reported to telemetry and the run summary.
const (
	sourceSalaries   = "scb"
	sourceDispersion = "scb_dispersion"
	sourceAds        = "jobads"
	sourceJobstream  = "jobstream"
)

// CubeFetcher fetches one query batch from the cube API.
type CubeFetcher interface {
	FetchCube(ctx context.Context, batch scb.QueryBatch) ([]pipeline.CubeCell, scb.Labels, error)
}

// AdFetcher fetches job advertisements.
type AdFetcher interface {
	FetchHistorical(ctx context.Context, p SearchParams) ([]pipeline.JobAd, error)
	FetchSnapshot(ctx context.Context) ([]pipeline.JobAd, error)
	FetchChangesSince(ctx context.Context, since time.Time) ([]pipeline.JobAd, error)
}

// SearchParams aliases the ad client's search parameters.
type SearchParams = jobads.SearchParams

// SkillExtractor annotates ads with skill terms.
type SkillExtractor interface {
	Extract(ctx context.Context, ads []pipeline.JobAd) []pipeline.SkillRecord
}

// Config controls run behavior.
type Config struct {
	// Parallelism bounds concurrent cube batches. The API rate limit is
	// shared, so more workers mostly shift waiting into the limiter.
	Parallelism int
	// Topic receives one completion event per committed batch.
	Topic string
	// StreamSource names the checkpoint row for the ad stream poll.
	StreamSource string
	// InitialLookback seeds the first stream poll when no checkpoint
	// exists yet.
	InitialLookback time.Duration
}

// Runner wires fetchers, transformers, and stores into pipeline runs.
type Runner struct {
	cubes       CubeFetcher
	dispersion  CubeFetcher
	ads         AdFetcher
	skills      SkillExtractor
	transformer *transform.Transformer
	reconciler  *taxonomy.Reconciler
	facts       pipeline.FactStore
	adStore     pipeline.AdStore
	skillStore  pipeline.SkillStore
	checkpoints pipeline.CheckpointStore
	publisher   pipeline.Publisher
	clock       pipeline.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Runner. dispersion may be nil when the dispersion
// table is not configured.
func New(
	cubes CubeFetcher,
	dispersion CubeFetcher,
	ads AdFetcher,
	skills SkillExtractor,
	transformer *transform.Transformer,
	reconciler *taxonomy.Reconciler,
	facts pipeline.FactStore,
	adStore pipeline.AdStore,
	skillStore pipeline.SkillStore,
	checkpoints pipeline.CheckpointStore,
	publisher pipeline.Publisher,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.StreamSource == "" {
		cfg.StreamSource = sourceJobstream
	}
	if cfg.InitialLookback <= 0 {
		cfg.InitialLookback = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cubes:       cubes,
		dispersion:  dispersion,
		ads:         ads,
		skills:      skills,
		transformer: transformer,
		reconciler:  reconciler,
		facts:       facts,
		adStore:     adStore,
		skillStore:  skillStore,
		checkpoints: checkpoints,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// IngestSalaries runs the full cube extraction: chunk the query within
// the cell limit, fetch and commit batches concurrently, and report
// per-batch outcomes. A failed batch is recorded and skipped; the rest
// of the run continues. Configuration errors abort immediately.
func (r *Runner) IngestSalaries(ctx context.Context, params scb.QueryParams, maxCells int) (pipeline.RunSummary, error) {
	return r.ingestCubes(ctx, sourceSalaries, r.cubes, params, maxCells)
}

// IngestDispersion runs the salary dispersion extraction (percentile
// measures) against the dispersion table. Chunking, storage, and
// reporting match IngestSalaries.
func (r *Runner) IngestDispersion(ctx context.Context, params scb.QueryParams, maxCells int) (pipeline.RunSummary, error) {
	if r.dispersion == nil {
		return pipeline.RunSummary{}, &pipeline.ConfigError{Reason: "dispersion table is not configured"}
	}
	return r.ingestCubes(ctx, sourceDispersion, r.dispersion, params, maxCells)
}

func (r *Runner) ingestCubes(ctx context.Context, source string, cubes CubeFetcher, params scb.QueryParams, maxCells int) (pipeline.RunSummary, error) {
	summary := pipeline.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
	}

	batches, err := scb.BuildQueries(params, maxCells)
	if err != nil {
		return summary, err
	}
	r.logger.Info("starting cube ingest",
		zap.String("run_id", summary.RunID),
		zap.String("source", source),
		zap.Int("batches", len(batches)),
		zap.Int("parallelism", r.cfg.Parallelism))

	var mu sync.Mutex
	reports := make([]pipeline.BatchReport, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, batch := range batches {
		g.Go(func() error {
			report, err := r.runCubeBatch(gctx, source, cubes, i, batch)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			if err != nil && pipeline.IsConfigError(err) {
				// Only configuration mistakes cancel sibling batches.
				return err
			}
			return nil
		})
	}
	err = g.Wait()

	summary.Batches = reports
	summary.FinishedAt = r.now()
	r.logger.Info("cube ingest finished",
		zap.String("run_id", summary.RunID),
		zap.String("source", source),
		zap.Int("succeeded", summary.Succeeded()),
		zap.Int("failed", summary.Failed()))
	return summary, err
}

func (r *Runner) runCubeBatch(ctx context.Context, source string, cubes CubeFetcher, index int, batch scb.QueryBatch) (pipeline.BatchReport, error) {
	report := pipeline.BatchReport{
		Batch:       index,
		Occupations: batch.Occupations,
		Years:       batch.Years,
	}
	started := r.now()

	err := func() error {
		cells, labels, err := cubes.FetchCube(ctx, batch)
		if err != nil {
			return err
		}
		rows := r.transformer.Facts(cells, labels)
		n, err := r.facts.UpsertFacts(ctx, rows)
		if err != nil {
			return fmt.Errorf("upsert facts: %w", err)
		}
		report.RowsWritten = n
		return nil
	}()

	report.Duration = r.now().Sub(started)
	if err != nil {
		report.Status = pipeline.BatchFailed
		report.Err = err.Error()
		telemetry.ObserveBatch(source, string(pipeline.BatchFailed))
		r.logger.Error("cube batch failed",
			zap.String("source", source),
			zap.Int("batch", index),
			zap.Strings("occupations", batch.Occupations),
			zap.Strings("years", batch.Years),
			zap.Error(err))
		if pipeline.IsConfigError(err) {
			return report, err
		}
		return report, &pipeline.BatchError{Batch: index, Err: err}
	}

	report.Status = pipeline.BatchSucceeded
	telemetry.ObserveBatch(source, string(pipeline.BatchSucceeded))
	r.publishReport(ctx, source, report)
	return report, nil
}

// IngestAds fetches historical ads, stores them, and enriches skills.
// Enrichment failures degrade to zero skills, never to a failed run.
func (r *Runner) IngestAds(ctx context.Context, params SearchParams) (pipeline.RunSummary, error) {
	return r.ingestAds(ctx, func(ctx context.Context) ([]pipeline.JobAd, error) {
		return r.ads.FetchHistorical(ctx, params)
	})
}

// SnapshotAds ingests every currently published ad from the stream
// snapshot endpoint. Storage and enrichment match IngestAds.
func (r *Runner) SnapshotAds(ctx context.Context) (pipeline.RunSummary, error) {
	return r.ingestAds(ctx, r.ads.FetchSnapshot)
}

func (r *Runner) ingestAds(ctx context.Context, fetch func(context.Context) ([]pipeline.JobAd, error)) (pipeline.RunSummary, error) {
	summary := pipeline.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
	}
	report := pipeline.BatchReport{Batch: 0}
	started := r.now()

	err := func() error {
		ads, err := fetch(ctx)
		if err != nil {
			return err
		}
		r.resolveOccupations(ads)

		n, err := r.adStore.UpsertAds(ctx, ads)
		if err != nil {
			return fmt.Errorf("upsert ads: %w", err)
		}
		report.RowsWritten = n

		if r.skills != nil && r.skillStore != nil {
			skills := r.skills.Extract(ctx, ads)
			if len(skills) > 0 {
				if _, err := r.skillStore.UpsertSkills(ctx, skills); err != nil {
					return fmt.Errorf("upsert skills: %w", err)
				}
			}
		}

		if rows := r.transformer.AdFacts(ads); len(rows) > 0 {
			if _, err := r.facts.UpsertFacts(ctx, rows); err != nil {
				return fmt.Errorf("upsert ad facts: %w", err)
			}
		}
		return nil
	}()

	report.Duration = r.now().Sub(started)
	if err != nil {
		report.Status = pipeline.BatchFailed
		report.Err = err.Error()
		telemetry.ObserveBatch(sourceAds, string(pipeline.BatchFailed))
	} else {
		report.Status = pipeline.BatchSucceeded
		telemetry.ObserveBatch(sourceAds, string(pipeline.BatchSucceeded))
		r.publishReport(ctx, sourceAds, report)
	}
	summary.Batches = []pipeline.BatchReport{report}
	summary.FinishedAt = r.now()
	return summary, err
}

// PollAds advances the ad stream checkpoint. The checkpoint is saved
// only after rows commit, so a crash mid-poll replays changes instead
// of losing them; upserts keyed by ad ID make the replay harmless.
func (r *Runner) PollAds(ctx context.Context) (int, error) {
	cp, ok, err := r.checkpoints.Load(ctx, r.cfg.StreamSource)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	since := cp.Position
	if !ok {
		since = r.now().Add(-r.cfg.InitialLookback)
		r.logger.Info("no checkpoint, seeding from lookback", zap.Time("since", since))
	}

	ads, err := r.ads.FetchChangesSince(ctx, since)
	if err != nil {
		telemetry.ObserveBatch(sourceJobstream, string(pipeline.BatchFailed))
		return 0, err
	}
	if len(ads) == 0 {
		telemetry.ObserveBatch(sourceJobstream, string(pipeline.BatchSkipped))
		return 0, nil
	}
	r.resolveOccupations(ads)

	var live, removed []pipeline.JobAd
	position := since
	for _, ad := range ads {
		if ad.ModifiedAt.After(position) {
			position = ad.ModifiedAt
		}
		if ad.Removed {
			removed = append(removed, ad)
		} else {
			live = append(live, ad)
		}
	}

	if _, err := r.adStore.UpsertAds(ctx, live); err != nil {
		return 0, fmt.Errorf("upsert stream ads: %w", err)
	}
	for _, ad := range removed {
		removedAt := ad.ModifiedAt
		if ad.RemovedAt != nil {
			removedAt = *ad.RemovedAt
		}
		if err := r.adStore.MarkRemoved(ctx, ad.AdID, removedAt); err != nil {
			// The ad may predate our first ingest; log and move on.
			r.logger.Warn("mark removed failed", zap.String("ad_id", ad.AdID), zap.Error(err))
		}
	}

	if err := r.checkpoints.Save(ctx, pipeline.Checkpoint{
		Source:    r.cfg.StreamSource,
		Position:  position,
		UpdatedAt: r.now(),
	}); err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}

	telemetry.ObserveBatch(sourceJobstream, string(pipeline.BatchSucceeded))
	r.logger.Info("stream poll complete",
		zap.Int("upserted", len(live)),
		zap.Int("removed", len(removed)),
		zap.Time("position", position))
	return len(ads), nil
}

// resolveOccupations fills SSYK codes from JobTech concept IDs.
func (r *Runner) resolveOccupations(ads []pipeline.JobAd) {
	if r.reconciler == nil {
		return
	}
	for i := range ads {
		if ads[i].OccupationCode != "" || ads[i].ConceptID == "" {
			continue
		}
		if code, ok := r.reconciler.SSYKForConcept(ads[i].ConceptID); ok {
			ads[i].OccupationCode = code
			if ads[i].OccupationName == "" {
				ads[i].OccupationName = r.reconciler.OccupationLabel(code)
			}
		}
	}
}

func (r *Runner) publishReport(ctx context.Context, source string, report pipeline.BatchReport) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"source":       source,
		"batch":        report.Batch,
		"rows_written": report.RowsWritten,
		"occupations":  report.Occupations,
		"years":        report.Years,
		"duration_ms":  report.Duration.Milliseconds(),
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		// Events are advisory; storage is already committed.
		r.logger.Warn("publish batch event failed", zap.Error(err))
	}
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}
