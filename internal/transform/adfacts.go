package transform

import (
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// MeasureVacancies names the yearly job-ad demand series.
const MeasureVacancies = "advertised_vacancies"

// AdFacts aggregates job ads into yearly vacancy counts per occupation
// and region, on the same fact shape as the salary series so both land
// in one table. Removed ads and ads without a publication date are
// excluded. Ads are demand-side counts with no gender dimension, so
// the gender column carries the "all" series.
func (t *Transformer) AdFacts(ads []pipeline.JobAd) []pipeline.FactRow {
	type groupKey struct {
		year       int
		occupation string
		region     string
	}
	type group struct {
		occName    string
		regionName string
		vacancies  int
	}

	groups := make(map[groupKey]*group)
	for _, ad := range ads {
		if ad.Removed || ad.PublishedAt.IsZero() {
			continue
		}

		occCode := ad.OccupationCode
		if occCode == "" {
			if ssyk, ok := t.reconciler.SSYKForConcept(ad.ConceptID); ok {
				occCode = ssyk
			} else {
				telemetry.ObserveUnmappedCode("concept")
				t.logger.Warn("ad has no resolvable occupation", zap.String("concept_id", ad.ConceptID))
				continue
			}
		}
		occ := t.reconciler.ResolveOrRaw(pipeline.DimOccupation, occCode)
		if occ.Label == occ.Code && ad.OccupationName != "" {
			occ.Label = ad.OccupationName
		}
		region := t.reconciler.ResolveOrRaw(pipeline.DimRegion, ad.RegionCode)

		key := groupKey{year: ad.PublishedAt.Year(), occupation: occ.Code, region: region.Code}
		g, ok := groups[key]
		if !ok {
			g = &group{occName: occ.Label, regionName: region.Label}
			groups[key] = g
		}
		g.vacancies += ad.VacancyCount
	}

	rows := make([]pipeline.FactRow, 0, len(groups))
	for key, g := range groups {
		rows = append(rows, pipeline.FactRow{
			SurrogateKey:   SurrogateKey(key.year, key.occupation, key.region, "all", MeasureVacancies),
			Year:           key.year,
			OccupationCode: key.occupation,
			OccupationName: g.occName,
			RegionCode:     key.region,
			RegionName:     g.regionName,
			Gender:         "all",
			MeasureName:    MeasureVacancies,
			Value:          pipeline.Numeric(float64(g.vacancies)),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SurrogateKey < rows[j].SurrogateKey })
	return rows
}
