package scb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

func TestDecodeStat2RoundTrip(t *testing.T) {
	t.Parallel()

	// 2x2 cube: region varies slowest, gender fastest (row-major).
	raw := []byte(`{
		"id": ["Region", "Kon"],
		"size": [2, 2],
		"dimension": {
			"Region": {"category": {"index": {"A": 0, "B": 1}, "label": {"A": "Alpha", "B": "Beta"}}},
			"Kon": {"category": {"index": {"1": 0, "2": 1}, "label": {"1": "men", "2": "women"}}}
		},
		"value": [100, 200, 300, 400]
	}`)

	cells, labels, err := DecodeStat2(raw)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	want := []struct {
		region, gender string
		value          float64
	}{
		{"A", "1", 100},
		{"A", "2", 200},
		{"B", "1", 300},
		{"B", "2", 400},
	}
	for i, w := range want {
		require.Equal(t, w.region, cells[i].Dimensions[pipeline.DimRegion])
		require.Equal(t, w.gender, cells[i].Dimensions[pipeline.DimGender])
		v, ok := cells[i].Value.Float()
		require.True(t, ok)
		require.Equal(t, w.value, v)
	}
	require.Equal(t, "Alpha", labels[pipeline.DimRegion]["A"])
	require.Equal(t, "women", labels[pipeline.DimGender]["2"])
}

func TestDecodeStat2MissingValues(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": ["Region"],
		"size": [3],
		"dimension": {
			"Region": {"category": {"index": {"A": 0, "B": 1, "C": 2}}}
		},
		"value": [10, null, null],
		"status": {"1": "..", "2": "."}
	}`)

	cells, _, err := DecodeStat2(raw)
	require.NoError(t, err)
	require.Len(t, cells, 3)

	require.False(t, cells[0].Value.IsNull())
	require.Equal(t, pipeline.ValueSuppressed, cells[1].Value.Kind())
	require.Equal(t, pipeline.ValueNotApplicable, cells[2].Value.Kind())

	// Suppressed cells must not look like zero.
	_, ok := cells[1].Value.Float()
	require.False(t, ok)
}

func TestDecodeStat2StringSentinels(t *testing.T) {
	t.Parallel()

	// Some tables serve the sentinels inline in the value vector
	// instead of null plus a status map.
	raw := []byte(`{
		"id": ["Region"],
		"size": [3],
		"dimension": {
			"Region": {"category": {"index": {"A": 0, "B": 1, "C": 2}}}
		},
		"value": [10, "..", "."]
	}`)

	cells, _, err := DecodeStat2(raw)
	require.NoError(t, err)
	require.Len(t, cells, 3)

	v, ok := cells[0].Value.Float()
	require.True(t, ok)
	require.Equal(t, 10.0, v)
	require.Equal(t, pipeline.ValueSuppressed, cells[1].Value.Kind())
	require.Equal(t, pipeline.ValueNotApplicable, cells[2].Value.Kind())
}

func TestDecodeStat2SizeMismatch(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": ["Region"],
		"size": [3],
		"dimension": {"Region": {"category": {"index": {"A": 0, "B": 1, "C": 2}}}},
		"value": [10, 20]
	}`)

	_, _, err := DecodeStat2(raw)
	require.Error(t, err)
	var de *pipeline.DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeStat2MeasureDimension(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": ["ContentsCode", "Tid"],
		"size": [2, 1],
		"dimension": {
			"ContentsCode": {"category": {"index": {"000007AS": 0, "000007AP": 1}}},
			"Tid": {"category": {"index": {"2024": 0}}}
		},
		"value": [45000, 1200]
	}`)

	cells, _, err := DecodeStat2(raw)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	require.Equal(t, MeasureMonthlySalary, cells[0].MeasureCode)
	require.Equal(t, MeasureNumEmployees, cells[1].MeasureCode)
	require.Equal(t, "2024", cells[0].Dimensions[pipeline.DimTime])
}
