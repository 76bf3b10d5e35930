package scb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchCubePostsQueryDocument(t *testing.T) {
	t.Parallel()

	var gotDoc QueryDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		_, _ = w.Write([]byte(`{
			"id": ["Region"],
			"size": [1],
			"dimension": {"Region": {"category": {"index": {"SE": 0}}}},
			"value": [42]
		}`))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, nil, nil, Config{BaseURL: srv.URL, Table: "/test"}, nil)

	batches, err := BuildQueries(QueryParams{
		Occupations: []string{"2512"},
		Regions:     []string{"SE"},
		Genders:     []string{"1"},
		Sectors:     []string{"0"},
		Measures:    []string{MeasureMonthlySalary},
		Years:       []string{"2024"},
	}, DefaultMaxCells)
	require.NoError(t, err)

	cells, _, err := client.FetchCube(context.Background(), batches[0])
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, "json-stat2", gotDoc.Response.Format)
	require.Len(t, gotDoc.Query, 6)
}

func TestMetadataDecodesVariables(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{
			"title": "Average monthly salary by region and occupation",
			"variables": [
				{"code": "Region", "text": "region", "values": ["SE", "SE11"], "valueTexts": ["Sweden", "Stockholm"]},
				{"code": "Tid", "text": "year", "values": ["2023", "2024"], "valueTexts": ["2023", "2024"], "time": true}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, nil, nil, Config{BaseURL: srv.URL, Table: "/test"}, nil)

	meta, err := client.Metadata(context.Background())
	require.NoError(t, err)
	require.Len(t, meta.Variables, 2)
	require.Equal(t, "Region", meta.Variables[0].Code)
	require.True(t, meta.Variables[1].Time)
}
