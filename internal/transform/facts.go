package transform

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/scb"
	"github.com/JakeFAU/labor-market-etl/internal/taxonomy"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// measureNames maps cube measure codes to canonical measure names. The
// dispersion codes come from the percentile table and never collide
// with the salary table's codes.
var measureNames = map[string]string{
	scb.MeasureMonthlySalary:  "average_monthly_salary",
	scb.MeasureBasicSalary:    "average_basic_salary",
	scb.MeasureSalaryRatio:    "salary_ratio",
	scb.MeasureNumEmployees:   "number_of_employees",
	scb.MeasureDispersionMean: "mean_monthly_salary",
	scb.MeasurePercentile10:   "salary_percentile_10",
	scb.MeasureMedianSalary:   "salary_median",
	scb.MeasurePercentile90:   "salary_percentile_90",
}

// Options tunes the fact transform.
type Options struct {
	// IncludeGenderAggregate keeps the combined "1+2" gender series.
	// Off by default: the aggregate double-counts when summed with the
	// per-gender series.
	IncludeGenderAggregate bool
}

// Transformer converts decoded cube cells into fact rows.
type Transformer struct {
	reconciler *taxonomy.Reconciler
	opts       Options
	logger     *zap.Logger
}

// New creates a Transformer.
func New(reconciler *taxonomy.Reconciler, opts Options, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{reconciler: reconciler, opts: opts, logger: logger}
}

// Facts produces one tidy row per cell. Suppressed and not-applicable
// values are kept as null-valued rows; the only dropped cells are
// unknown measures and, unless enabled, the combined gender series.
func (t *Transformer) Facts(cells []pipeline.CubeCell, labels scb.Labels) []pipeline.FactRow {
	rows := make([]pipeline.FactRow, 0, len(cells))
	dropped := 0
	for _, cell := range cells {
		measure, ok := measureNames[cell.MeasureCode]
		if !ok {
			telemetry.ObserveUnmappedCode("measure")
			dropped++
			continue
		}

		rawGender := cell.Dimensions[pipeline.DimGender]
		if rawGender == "1+2" && !t.opts.IncludeGenderAggregate {
			continue
		}

		rawYear := cell.Dimensions[pipeline.DimTime]
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			t.logger.Warn("skipping cell with unparseable year", zap.String("year", rawYear))
			dropped++
			continue
		}

		occ := t.reconciler.ResolveOrRaw(pipeline.DimOccupation, cell.Dimensions[pipeline.DimOccupation])
		if occ.Label == occ.Code {
			// Prefer the source's own label over the bare code.
			if name := labelFor(labels, pipeline.DimOccupation, occ.Code); name != "" {
				occ.Label = name
			}
		}
		// The dispersion table has no region dimension; an absent code
		// stays empty instead of going through the crosswalk.
		region := taxonomy.Entry{Kind: pipeline.DimRegion}
		if raw := cell.Dimensions[pipeline.DimRegion]; raw != "" {
			region = t.reconciler.ResolveOrRaw(pipeline.DimRegion, raw)
		}
		gender := t.reconciler.ResolveOrRaw(pipeline.DimGender, rawGender)

		rows = append(rows, pipeline.FactRow{
			SurrogateKey:   SurrogateKey(year, occ.Code, region.Code, gender.Code, measure),
			Year:           year,
			OccupationCode: occ.Code,
			OccupationName: occ.Label,
			RegionCode:     region.Code,
			RegionName:     region.Label,
			Gender:         gender.Code,
			MeasureName:    measure,
			Value:          cell.Value,
		})
	}
	if dropped > 0 {
		t.logger.Warn("dropped cells during transform", zap.Int("dropped", dropped))
	}
	return rows
}

func labelFor(labels scb.Labels, kind pipeline.DimensionKind, code string) string {
	if labels == nil {
		return ""
	}
	return labels[kind][code]
}
