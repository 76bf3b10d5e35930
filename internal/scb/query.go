// Package scb talks to Statistics Sweden's PXWeb cube API: selection
// query documents out, JSON-stat2 responses in.
package scb

import (
	"fmt"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// PXWeb dimension codes for the salary-by-occupation-and-region table.
const (
	CodeRegion     = "Region"
	CodeSector     = "Sektor"
	CodeOccupation = "Yrke2012"
	CodeGender     = "Kon"
	CodeContents   = "ContentsCode"
	CodeTime       = "Tid"
)

// Selection restricts one dimension to an explicit code list.
type Selection struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

// DimensionFilter pairs a dimension code with its selection.
type DimensionFilter struct {
	Code      string    `json:"code"`
	Selection Selection `json:"selection"`
}

// ResponseSpec selects the interchange format.
type ResponseSpec struct {
	Format string `json:"format"`
}

// QueryDocument is the POST body sent to the PXWeb endpoint.
type QueryDocument struct {
	Query    []DimensionFilter `json:"query"`
	Response ResponseSpec      `json:"response"`
}

// QueryParams spans the full extraction cube before chunking.
type QueryParams struct {
	Occupations []string
	Regions     []string
	Genders     []string
	Sectors     []string
	Measures    []string
	Years       []string
}

// QueryBatch is one chunk of the extraction cube, sized to respect the
// API's cell-count ceiling. Batches are independent of each other.
type QueryBatch struct {
	Occupations []string
	Years       []string
	Cells       int
	Document    QueryDocument
}

// Region and sector are eliminable dimensions: some tables (the
// dispersion table among them) do not carry them, and PXWeb aggregates
// an omitted eliminable dimension away. The remaining dimensions are
// mandatory on every table this pipeline queries.
func (p QueryParams) validate() error {
	for _, d := range []struct {
		name string
		vals []string
	}{
		{"occupations", p.Occupations},
		{"genders", p.Genders},
		{"measures", p.Measures},
		{"years", p.Years},
	} {
		if len(d.vals) == 0 {
			return &pipeline.ConfigError{Reason: fmt.Sprintf("empty %s selection", d.name)}
		}
	}
	return nil
}

// BuildQueries partitions the extraction cube into query documents whose
// cell counts stay at or below maxCells. Occupations are split first
// (largest, most stable dimension); if a single occupation with the full
// year list still exceeds the limit, years are split too. Coverage is
// exact: every occupation appears in exactly one batch per year chunk.
func BuildQueries(p QueryParams, maxCells int) ([]QueryBatch, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if maxCells <= 0 {
		return nil, &pipeline.ConfigError{Reason: "max cells must be positive"}
	}

	perOccYear := dimLen(p.Regions) * len(p.Genders) * dimLen(p.Sectors) * len(p.Measures)
	if perOccYear > maxCells {
		return nil, &pipeline.ConfigError{
			Reason: fmt.Sprintf("region/gender/sector/measure cross product (%d cells) exceeds limit %d; cannot split further", perOccYear, maxCells),
		}
	}

	perOcc := perOccYear * len(p.Years)
	occPerBatch := maxCells / perOcc
	yearChunks := [][]string{p.Years}
	if occPerBatch < 1 {
		// One occupation over all years is still too big: chunk years.
		yearsPerBatch := maxCells / perOccYear
		yearChunks = chunk(p.Years, yearsPerBatch)
		occPerBatch = 1
	}

	var batches []QueryBatch
	for _, years := range yearChunks {
		for _, occs := range chunk(p.Occupations, occPerBatch) {
			cells := len(occs) * perOccYear * len(years)
			batches = append(batches, QueryBatch{
				Occupations: occs,
				Years:       years,
				Cells:       cells,
				Document:    buildDocument(p, occs, years),
			})
		}
	}
	return batches, nil
}

func buildDocument(p QueryParams, occupations, years []string) QueryDocument {
	var filters []DimensionFilter
	if len(p.Regions) > 0 {
		filters = append(filters, DimensionFilter{Code: CodeRegion, Selection: item(p.Regions)})
	}
	if len(p.Sectors) > 0 {
		filters = append(filters, DimensionFilter{Code: CodeSector, Selection: item(p.Sectors)})
	}
	filters = append(filters,
		DimensionFilter{Code: CodeOccupation, Selection: item(occupations)},
		DimensionFilter{Code: CodeGender, Selection: item(p.Genders)},
		DimensionFilter{Code: CodeContents, Selection: item(p.Measures)},
		DimensionFilter{Code: CodeTime, Selection: item(years)},
	)
	return QueryDocument{
		Query:    filters,
		Response: ResponseSpec{Format: "json-stat2"},
	}
}

func item(values []string) Selection {
	return Selection{Filter: "item", Values: values}
}

// dimLen sizes an eliminable dimension: omitted means the API returns
// one aggregated slice, which still costs one cell.
func dimLen(values []string) int {
	if len(values) == 0 {
		return 1
	}
	return len(values)
}

func chunk(values []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[start:end])
	}
	return out
}
