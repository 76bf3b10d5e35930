package transform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/scb"
	"github.com/JakeFAU/labor-market-etl/internal/taxonomy"
)

func testTransformer(t *testing.T, opts Options) *Transformer {
	t.Helper()
	rec, err := taxonomy.NewReconciler(context.Background(), nil, nil)
	require.NoError(t, err)
	return New(rec, opts, nil)
}

func cubeCell(occ, region, gender, year, measure string, value pipeline.Value) pipeline.CubeCell {
	return pipeline.CubeCell{
		Dimensions: map[pipeline.DimensionKind]string{
			pipeline.DimOccupation: occ,
			pipeline.DimRegion:     region,
			pipeline.DimGender:     gender,
			pipeline.DimTime:       year,
		},
		MeasureCode: measure,
		Value:       value,
	}
}

func TestSurrogateKeyDeterministic(t *testing.T) {
	a := SurrogateKey(2023, "2512", "SE11", "women", "average_monthly_salary")
	b := SurrogateKey(2023, "2512", "SE11", "women", "average_monthly_salary")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestSurrogateKeySensitiveToEveryField(t *testing.T) {
	base := SurrogateKey(2023, "2512", "SE11", "women", "average_monthly_salary")
	variants := []string{
		SurrogateKey(2024, "2512", "SE11", "women", "average_monthly_salary"),
		SurrogateKey(2023, "2513", "SE11", "women", "average_monthly_salary"),
		SurrogateKey(2023, "2512", "SE22", "women", "average_monthly_salary"),
		SurrogateKey(2023, "2512", "SE11", "men", "average_monthly_salary"),
		SurrogateKey(2023, "2512", "SE11", "women", "number_of_employees"),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d must change the key", i)
	}
}

func TestFactsResolvesCodes(t *testing.T) {
	tr := testTransformer(t, Options{})
	cells := []pipeline.CubeCell{
		cubeCell("2512", "SE11", "2", "2023", scb.MeasureMonthlySalary, pipeline.Numeric(48100)),
	}
	labels := scb.Labels{
		pipeline.DimOccupation: {"2512": "Software and system developers"},
	}

	rows := tr.Facts(cells, labels)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 2023, row.Year)
	assert.Equal(t, "2512", row.OccupationCode)
	assert.Equal(t, "Software and system developers", row.OccupationName)
	assert.Equal(t, "SE11", row.RegionCode)
	assert.Equal(t, "Stockholm", row.RegionName)
	assert.Equal(t, "women", row.Gender)
	assert.Equal(t, "average_monthly_salary", row.MeasureName)
	v, ok := row.Value.Float()
	require.True(t, ok)
	assert.Equal(t, 48100.0, v)
}

func TestFactsMapsDispersionMeasures(t *testing.T) {
	tr := testTransformer(t, Options{})
	cells := []pipeline.CubeCell{
		cubeCell("2512", "", "1", "2023", scb.MeasurePercentile10, pipeline.Numeric(34000)),
		cubeCell("2512", "", "1", "2023", scb.MeasureMedianSalary, pipeline.Numeric(48000)),
		cubeCell("2512", "", "1", "2023", scb.MeasurePercentile90, pipeline.Numeric(69000)),
	}

	rows := tr.Facts(cells, nil)
	require.Len(t, rows, 3)

	names := make([]string, 0, len(rows))
	keys := map[string]bool{}
	for _, row := range rows {
		names = append(names, row.MeasureName)
		keys[row.SurrogateKey] = true
		assert.Empty(t, row.RegionCode, "dispersion rows carry no region")
	}
	assert.ElementsMatch(t, []string{"salary_percentile_10", "salary_median", "salary_percentile_90"}, names)
	assert.Len(t, keys, 3, "each percentile gets its own key")
}

func TestFactsKeepsNullValues(t *testing.T) {
	tr := testTransformer(t, Options{})
	cells := []pipeline.CubeCell{
		cubeCell("2512", "SE11", "1", "2023", scb.MeasureMonthlySalary, pipeline.Suppressed()),
		cubeCell("2512", "SE11", "2", "2023", scb.MeasureMonthlySalary, pipeline.NotApplicable()),
	}

	rows := tr.Facts(cells, nil)
	require.Len(t, rows, 2, "suppressed and not-applicable cells become null rows, not drops")
	assert.True(t, rows[0].Value.IsNull())
	assert.Equal(t, pipeline.ValueSuppressed, rows[0].Value.Kind())
	assert.Equal(t, pipeline.ValueNotApplicable, rows[1].Value.Kind())
}

func TestFactsDropsUnknownMeasure(t *testing.T) {
	tr := testTransformer(t, Options{})
	cells := []pipeline.CubeCell{
		cubeCell("2512", "SE11", "1", "2023", "BOGUS", pipeline.Numeric(1)),
		cubeCell("2512", "SE11", "1", "2023", scb.MeasureNumEmployees, pipeline.Numeric(900)),
	}
	rows := tr.Facts(cells, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "number_of_employees", rows[0].MeasureName)
}

func TestFactsGenderAggregateExcludedByDefault(t *testing.T) {
	cells := []pipeline.CubeCell{
		cubeCell("2512", "SE11", "1+2", "2023", scb.MeasureMonthlySalary, pipeline.Numeric(45000)),
		cubeCell("2512", "SE11", "1", "2023", scb.MeasureMonthlySalary, pipeline.Numeric(46000)),
	}

	rows := testTransformer(t, Options{}).Facts(cells, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "men", rows[0].Gender)

	rows = testTransformer(t, Options{IncludeGenderAggregate: true}).Facts(cells, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "all", rows[0].Gender)
}

func TestFactsPassesUnmappedRegionThrough(t *testing.T) {
	tr := testTransformer(t, Options{})
	cells := []pipeline.CubeCell{
		cubeCell("2512", "XX99", "1", "2023", scb.MeasureMonthlySalary, pipeline.Numeric(1)),
	}
	rows := tr.Facts(cells, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "XX99", rows[0].RegionCode)
	assert.Equal(t, "XX99", rows[0].RegionName)
}

func TestAdFactsAggregatesByYear(t *testing.T) {
	tr := testTransformer(t, Options{})
	day := func(y int, m time.Month) time.Time {
		return time.Date(y, m, 15, 0, 0, 0, 0, time.UTC)
	}
	removed := time.Now()
	ads := []pipeline.JobAd{
		{AdID: "1", OccupationCode: "2512", RegionCode: "01", VacancyCount: 2, PublishedAt: day(2023, time.March)},
		{AdID: "2", OccupationCode: "2512", RegionCode: "01", VacancyCount: 1, PublishedAt: day(2023, time.June)},
		{AdID: "3", OccupationCode: "2512", RegionCode: "01", VacancyCount: 1, PublishedAt: day(2024, time.January)},
		{AdID: "4", OccupationCode: "2512", RegionCode: "01", VacancyCount: 5, PublishedAt: day(2023, time.May), Removed: true, RemovedAt: &removed},
	}

	rows := tr.AdFacts(ads)
	require.Len(t, rows, 2)

	byYear := map[int]pipeline.FactRow{}
	for _, row := range rows {
		byYear[row.Year] = row
	}
	v23, _ := byYear[2023].Value.Float()
	v24, _ := byYear[2024].Value.Float()
	assert.Equal(t, 3.0, v23, "removed ads must not count")
	assert.Equal(t, 1.0, v24)
	assert.Equal(t, "SE11", byYear[2023].RegionCode, "county code folds onto NUTS region")
	assert.Equal(t, "all", byYear[2023].Gender)
	assert.Equal(t, MeasureVacancies, byYear[2023].MeasureName)
}

func TestAdFactsIdempotentKeys(t *testing.T) {
	tr := testTransformer(t, Options{})
	ads := []pipeline.JobAd{
		{AdID: "1", OccupationCode: "2512", RegionCode: "01", VacancyCount: 1, PublishedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	first := tr.AdFacts(ads)
	second := tr.AdFacts(ads)
	require.Len(t, first, 1)
	assert.Equal(t, first[0].SurrogateKey, second[0].SurrogateKey)
}
