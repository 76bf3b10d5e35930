package scb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// stat2Response mirrors the JSON-stat2 interchange format: dimension
// metadata plus a flat value vector in row-major order over the
// Cartesian product of category lists.
type stat2Response struct {
	ID        []string                  `json:"id"`
	Size      []int                     `json:"size"`
	Dimension map[string]stat2Dimension `json:"dimension"`
	Value     []stat2Value              `json:"value"`
	Status    map[string]string         `json:"status"`
}

// stat2Value is one entry of the value vector. SCB serves numbers for
// reported cells, but missing cells may arrive as null or as the string
// sentinels ".." and ".".
type stat2Value struct {
	num      *float64
	sentinel string
}

func (v *stat2Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &v.sentinel)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	v.num = &f
	return nil
}

type stat2Dimension struct {
	Label    string        `json:"label"`
	Category stat2Category `json:"category"`
}

type stat2Category struct {
	Index map[string]int    `json:"index"`
	Label map[string]string `json:"label"`
}

// statusNotApplicable is PXWeb's marker for combinations the source does
// not report; every other non-numeric cell is a privacy suppression.
const statusNotApplicable = "."

var dimensionKinds = map[string]pipeline.DimensionKind{
	CodeRegion:     pipeline.DimRegion,
	CodeSector:     pipeline.DimSector,
	CodeOccupation: pipeline.DimOccupation,
	CodeGender:     pipeline.DimGender,
	CodeContents:   pipeline.DimMeasure,
	CodeTime:       pipeline.DimTime,
}

// Labels maps dimension category codes to display labels, per dimension.
type Labels map[pipeline.DimensionKind]map[string]string

// DecodeStat2 flattens a JSON-stat2 payload into one cube cell per
// linear value index. Missing-value sentinels become null variants,
// never zero.
func DecodeStat2(raw []byte) ([]pipeline.CubeCell, Labels, error) {
	var resp stat2Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, &pipeline.DecodeError{Reason: fmt.Sprintf("unmarshal json-stat2: %v", err)}
	}
	if len(resp.ID) != len(resp.Size) {
		return nil, nil, &pipeline.DecodeError{
			Reason: fmt.Sprintf("dimension count mismatch: %d ids vs %d sizes", len(resp.ID), len(resp.Size)),
		}
	}

	total := 1
	for _, s := range resp.Size {
		if s <= 0 {
			return nil, nil, &pipeline.DecodeError{Reason: fmt.Sprintf("non-positive dimension size %d", s)}
		}
		total *= s
	}
	if total != len(resp.Value) {
		return nil, nil, &pipeline.DecodeError{
			Reason: fmt.Sprintf("value vector length %d does not match declared cell count %d", len(resp.Value), total),
		}
	}

	// Ordered category codes per dimension, by category index.
	codes := make([][]string, len(resp.ID))
	labels := make(Labels)
	for d, id := range resp.ID {
		dim, ok := resp.Dimension[id]
		if !ok {
			return nil, nil, &pipeline.DecodeError{Reason: fmt.Sprintf("dimension %q missing metadata", id)}
		}
		ordered, err := orderedCodes(dim.Category, resp.Size[d])
		if err != nil {
			return nil, nil, &pipeline.DecodeError{Reason: fmt.Sprintf("dimension %q: %v", id, err)}
		}
		codes[d] = ordered
		if kind, known := dimensionKinds[id]; known && len(dim.Category.Label) > 0 {
			labels[kind] = dim.Category.Label
		}
	}

	cells := make([]pipeline.CubeCell, 0, total)
	for i := 0; i < total; i++ {
		dims := make(map[pipeline.DimensionKind]string, len(resp.ID))
		measure := ""
		// Mixed-radix decomposition: the last dimension varies fastest.
		rem := i
		for d := len(resp.ID) - 1; d >= 0; d-- {
			pos := rem % resp.Size[d]
			rem /= resp.Size[d]
			code := codes[d][pos]
			kind, known := dimensionKinds[resp.ID[d]]
			if !known {
				kind = pipeline.DimensionKind(resp.ID[d])
			}
			if kind == pipeline.DimMeasure {
				measure = code
			}
			dims[kind] = code
		}
		cells = append(cells, pipeline.CubeCell{
			Dimensions:  dims,
			MeasureCode: measure,
			Value:       decodeValue(resp.Value[i], resp.Status[strconv.Itoa(i)]),
		})
	}
	return cells, labels, nil
}

func decodeValue(v stat2Value, status string) pipeline.Value {
	if v.num != nil {
		return pipeline.Numeric(*v.num)
	}
	if v.sentinel == statusNotApplicable || status == statusNotApplicable {
		return pipeline.NotApplicable()
	}
	return pipeline.Suppressed()
}

func orderedCodes(cat stat2Category, size int) ([]string, error) {
	if len(cat.Index) > 0 {
		if len(cat.Index) != size {
			return nil, fmt.Errorf("category index has %d entries, size says %d", len(cat.Index), size)
		}
		ordered := make([]string, 0, len(cat.Index))
		for code := range cat.Index {
			ordered = append(ordered, code)
		}
		sort.Slice(ordered, func(a, b int) bool {
			return cat.Index[ordered[a]] < cat.Index[ordered[b]]
		})
		return ordered, nil
	}
	// A single-category dimension may omit the index and carry only a label.
	if len(cat.Label) != size {
		return nil, fmt.Errorf("category label has %d entries, size says %d", len(cat.Label), size)
	}
	ordered := make([]string, 0, len(cat.Label))
	for code := range cat.Label {
		ordered = append(ordered, code)
	}
	sort.Strings(ordered)
	return ordered, nil
}
