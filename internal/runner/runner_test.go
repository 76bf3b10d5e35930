package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	publishermem "github.com/JakeFAU/labor-market-etl/internal/publisher/memory"
	"github.com/JakeFAU/labor-market-etl/internal/scb"
	"github.com/JakeFAU/labor-market-etl/internal/storage/memory"
	"github.com/JakeFAU/labor-market-etl/internal/taxonomy"
	"github.com/JakeFAU/labor-market-etl/internal/transform"
)

type fakeCubeFetcher struct {
	mu      sync.Mutex
	calls   int
	failOn  map[int]error
	byBatch func(batch scb.QueryBatch) []pipeline.CubeCell
}

func (f *fakeCubeFetcher) FetchCube(_ context.Context, batch scb.QueryBatch) ([]pipeline.CubeCell, scb.Labels, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	if err, ok := f.failOn[call]; ok {
		return nil, nil, err
	}
	if f.byBatch != nil {
		return f.byBatch(batch), nil, nil
	}
	return nil, nil, nil
}

type fakeAdFetcher struct {
	historical []pipeline.JobAd
	snapshot   []pipeline.JobAd
	changes    []pipeline.JobAd
	err        error
	gotSince   time.Time
}

func (f *fakeAdFetcher) FetchHistorical(_ context.Context, _ SearchParams) ([]pipeline.JobAd, error) {
	return f.historical, f.err
}

func (f *fakeAdFetcher) FetchSnapshot(_ context.Context) ([]pipeline.JobAd, error) {
	return f.snapshot, f.err
}

func (f *fakeAdFetcher) FetchChangesSince(_ context.Context, since time.Time) ([]pipeline.JobAd, error) {
	f.gotSince = since
	return f.changes, f.err
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func newTestRunner(t *testing.T, cubes CubeFetcher, ads AdFetcher) (*Runner, *memory.FactStore, *memory.AdStore, *memory.CheckpointStore, *publishermem.Publisher) {
	t.Helper()
	rec, err := taxonomy.NewReconciler(context.Background(), nil, nil)
	require.NoError(t, err)

	facts := memory.NewFactStore()
	adStore := memory.NewAdStore()
	checkpoints := memory.NewCheckpointStore()
	pub := publishermem.New()
	tr := transform.New(rec, transform.Options{}, nil)

	r := New(cubes, cubes, ads, nil, tr, rec, facts, adStore, memory.NewSkillStore(),
		checkpoints, pub, fakeClock{now: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)},
		Config{Parallelism: 3, Topic: "batch-events"}, nil)
	return r, facts, adStore, checkpoints, pub
}

func salaryParams() scb.QueryParams {
	occupations := make([]string, 10)
	for i := range occupations {
		occupations[i] = fmt.Sprintf("25%02d", i)
	}
	return scb.QueryParams{
		Occupations: occupations,
		Regions:     []string{"SE11"},
		Genders:     []string{"1", "2"},
		Sectors:     []string{"0"},
		Measures:    []string{scb.MeasureMonthlySalary},
		Years:       []string{"2023"},
	}
}

func cellsFor(batch scb.QueryBatch) []pipeline.CubeCell {
	var cells []pipeline.CubeCell
	for _, occ := range batch.Occupations {
		for _, year := range batch.Years {
			cells = append(cells, pipeline.CubeCell{
				Dimensions: map[pipeline.DimensionKind]string{
					pipeline.DimOccupation: occ,
					pipeline.DimRegion:     "SE11",
					pipeline.DimGender:     "1",
					pipeline.DimTime:       year,
				},
				MeasureCode: scb.MeasureMonthlySalary,
				Value:       pipeline.Numeric(40000),
			})
		}
	}
	return cells
}

func TestIngestSalariesIsolatesFailedBatch(t *testing.T) {
	cubes := &fakeCubeFetcher{
		failOn:  map[int]error{2: &pipeline.TransientError{Err: errors.New("gateway timeout")}},
		byBatch: cellsFor,
	}
	// maxCells 4 with 2 genders x 1 region x 1 sector x 1 measure x 1 year
	// means two occupations per batch: ten occupations, five batches.
	r, facts, _, _, pub := newTestRunner(t, cubes, nil)

	summary, err := r.IngestSalaries(context.Background(), salaryParams(), 4)
	require.NoError(t, err, "one failed batch must not fail the run")

	assert.Equal(t, 4, summary.Succeeded())
	assert.Equal(t, 1, summary.Failed())
	require.Len(t, summary.Batches, 5)

	var failed pipeline.BatchReport
	for _, report := range summary.Batches {
		if report.Status == pipeline.BatchFailed {
			failed = report
		}
	}
	assert.NotEmpty(t, failed.Occupations, "failed report must carry replay parameters")
	assert.NotEmpty(t, failed.Err)

	// Four committed batches of two occupations each.
	assert.Equal(t, 8, facts.Len())
	assert.Len(t, pub.Messages(), 4, "only committed batches publish events")
}

func TestIngestSalariesAbortsOnConfigError(t *testing.T) {
	r, _, _, _, _ := newTestRunner(t, &fakeCubeFetcher{}, nil)

	params := salaryParams()
	_, err := r.IngestSalaries(context.Background(), params, 1)
	require.Error(t, err)
	assert.True(t, pipeline.IsConfigError(err))
}

func TestIngestSalariesRerunIsIdempotent(t *testing.T) {
	cubes := &fakeCubeFetcher{byBatch: cellsFor}
	r, facts, _, _, _ := newTestRunner(t, cubes, nil)

	_, err := r.IngestSalaries(context.Background(), salaryParams(), 4)
	require.NoError(t, err)
	first := facts.Len()

	_, err = r.IngestSalaries(context.Background(), salaryParams(), 4)
	require.NoError(t, err)
	assert.Equal(t, first, facts.Len(), "re-running a batch must overwrite, not duplicate")
}

func TestIngestDispersionStoresPercentiles(t *testing.T) {
	percentiles := []string{scb.MeasurePercentile10, scb.MeasureMedianSalary, scb.MeasurePercentile90}
	cubes := &fakeCubeFetcher{byBatch: func(batch scb.QueryBatch) []pipeline.CubeCell {
		var cells []pipeline.CubeCell
		for _, occ := range batch.Occupations {
			for _, m := range percentiles {
				cells = append(cells, pipeline.CubeCell{
					Dimensions: map[pipeline.DimensionKind]string{
						pipeline.DimOccupation: occ,
						pipeline.DimGender:     "1",
						pipeline.DimTime:       "2023",
					},
					MeasureCode: m,
					Value:       pipeline.Numeric(30000),
				})
			}
		}
		return cells
	}}
	r, facts, _, _, _ := newTestRunner(t, cubes, nil)

	params := scb.QueryParams{
		Occupations: []string{"2512"},
		Genders:     []string{"1"},
		Sectors:     []string{"0"},
		Measures:    percentiles,
		Years:       []string{"2023"},
	}
	summary, err := r.IngestDispersion(context.Background(), params, scb.DefaultMaxCells)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded())
	assert.Equal(t, 3, facts.Len(), "one fact per percentile measure")
}

func TestIngestDispersionRequiresFetcher(t *testing.T) {
	r := New(&fakeCubeFetcher{}, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, Config{}, nil)

	_, err := r.IngestDispersion(context.Background(), salaryParams(), scb.DefaultMaxCells)
	require.Error(t, err)
	assert.True(t, pipeline.IsConfigError(err))
}

func TestIngestAdsStoresAndAggregates(t *testing.T) {
	published := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	ads := &fakeAdFetcher{historical: []pipeline.JobAd{
		{AdID: "a1", OccupationCode: "2512", RegionCode: "01", VacancyCount: 2, PublishedAt: published, ModifiedAt: published},
	}}
	r, facts, adStore, _, pub := newTestRunner(t, nil, ads)

	summary, err := r.IngestAds(context.Background(), SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded())
	assert.Equal(t, 1, adStore.Len())
	assert.Equal(t, 1, facts.Len(), "yearly vacancy fact written")
	assert.Len(t, pub.Messages(), 1)
}

func TestSnapshotAdsStoresCurrentAds(t *testing.T) {
	published := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ads := &fakeAdFetcher{snapshot: []pipeline.JobAd{
		{AdID: "s1", OccupationCode: "2512", RegionCode: "01", VacancyCount: 1, PublishedAt: published, ModifiedAt: published},
		{AdID: "s2", OccupationCode: "2511", RegionCode: "14", VacancyCount: 3, PublishedAt: published, ModifiedAt: published},
	}}
	r, facts, adStore, _, _ := newTestRunner(t, nil, ads)

	summary, err := r.SnapshotAds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded())
	assert.Equal(t, 2, adStore.Len())
	assert.Equal(t, 2, facts.Len(), "one yearly vacancy fact per occupation/region")
}

func TestPollAdsAdvancesCheckpoint(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	removedAt := base.Add(2 * time.Hour)
	ads := &fakeAdFetcher{changes: []pipeline.JobAd{
		{AdID: "live", PublishedAt: base, ModifiedAt: base.Add(time.Hour)},
		{AdID: "gone", PublishedAt: base, ModifiedAt: removedAt, Removed: true, RemovedAt: &removedAt},
	}}
	r, _, adStore, checkpoints, _ := newTestRunner(t, nil, ads)

	// Seed the store so the removal has a row to flag.
	_, err := adStore.UpsertAds(context.Background(), []pipeline.JobAd{{AdID: "gone", PublishedAt: base}})
	require.NoError(t, err)

	n, err := r.PollAds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ad, ok := adStore.Get("gone")
	require.True(t, ok)
	assert.True(t, ad.Removed, "removed ads are flagged, not deleted")

	cp, ok, err := checkpoints.Load(context.Background(), "jobstream")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, removedAt, cp.Position, "checkpoint advances to newest modification")
}

func TestPollAdsSeedsLookbackWithoutCheckpoint(t *testing.T) {
	ads := &fakeAdFetcher{}
	r, _, _, checkpoints, _ := newTestRunner(t, nil, ads)

	n, err := r.PollAds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	expected := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC).Add(-90 * 24 * time.Hour)
	assert.Equal(t, expected, ads.gotSince)

	// An empty poll saves no checkpoint.
	_, ok, err := checkpoints.Load(context.Background(), "jobstream")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPollAdsFetchErrorLeavesCheckpoint(t *testing.T) {
	ads := &fakeAdFetcher{err: errors.New("api down")}
	r, _, _, checkpoints, _ := newTestRunner(t, nil, ads)

	seed := pipeline.Checkpoint{Source: "jobstream", Position: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), UpdatedAt: time.Now()}
	require.NoError(t, checkpoints.Save(context.Background(), seed))

	_, err := r.PollAds(context.Background())
	require.Error(t, err)

	cp, ok, err := checkpoints.Load(context.Background(), "jobstream")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seed.Position, cp.Position, "failed poll must not advance the checkpoint")
}
