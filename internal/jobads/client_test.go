package jobads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

func adJSON(id string, tsMillis int64) map[string]any {
	return map[string]any{
		"id":               id,
		"headline":         "Systemutvecklare",
		"publication_date": "2023-04-01T08:00:00",
		"timestamp":        tsMillis,
		"occupation_group": map[string]any{
			"label":      "Software and system developers",
			"concept_id": "DJh5_yyF_hEM",
		},
		"workplace_address": map[string]any{
			"region":      "Stockholms län",
			"region_code": "01",
			"coordinates": []float64{18.07, 59.33},
		},
		"number_of_vacancies": 2,
	}
}

func TestFetchHistoricalPaginates(t *testing.T) {
	const limit = 5
	var requests int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset := r.URL.Query().Get("offset")
		require.Equal(t, "5", r.URL.Query().Get("limit"))

		// Three full pages then a short page of 2.
		pageSizes := map[string]int{"0": 5, "5": 5, "10": 5, "15": 2}
		n, ok := pageSizes[offset]
		require.True(t, ok, "unexpected offset %s", offset)

		hits := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			hits = append(hits, adJSON(fmt.Sprintf("ad-%s-%d", offset, i), 1700000000000))
		}
		resp := map[string]any{
			"total": map[string]any{"value": 17},
			"hits":  hits,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{HistoricalURL: srv.URL}, nil)
	ads, err := client.FetchHistorical(context.Background(), SearchParams{PageSize: limit})
	require.NoError(t, err)

	assert.Equal(t, 4, requests, "short page must terminate pagination")
	assert.Len(t, ads, 17)
}

func TestFetchHistoricalStopsAtTotal(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		hits := []map[string]any{
			adJSON("a", 1), adJSON("b", 1), adJSON("c", 1),
		}
		resp := map[string]any{
			"total": map[string]any{"value": 3},
			"hits":  hits,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{HistoricalURL: srv.URL}, nil)
	ads, err := client.FetchHistorical(context.Background(), SearchParams{PageSize: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, requests, "offset reaching total must terminate")
	assert.Len(t, ads, 3)
}

func TestFetchHistoricalDeduplicatesKeepingNewest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		old := adJSON("dup", 1600000000000)
		old["headline"] = "stale"
		fresh := adJSON("dup", 1700000000000)
		fresh["headline"] = "fresh"
		resp := map[string]any{
			"total": map[string]any{"value": 2},
			"hits":  []map[string]any{old, fresh},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{HistoricalURL: srv.URL}, nil)
	ads, err := client.FetchHistorical(context.Background(), SearchParams{PageSize: 100})
	require.NoError(t, err)

	require.Len(t, ads, 1)
	assert.Equal(t, "fresh", ads[0].Headline)
}

func TestFetchHistoricalPageBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits := make([]map[string]any, 2)
		for i := range hits {
			hits[i] = adJSON(fmt.Sprintf("ad-%s-%d", r.URL.Query().Get("offset"), i), 1)
		}
		resp := map[string]any{
			"total": map[string]any{"value": 0},
			"hits":  hits,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{HistoricalURL: srv.URL}, nil)
	_, err := client.FetchHistorical(context.Background(), SearchParams{PageSize: 2, MaxPages: 3})
	require.Error(t, err)
	assert.True(t, pipeline.IsConfigError(err))
}

func TestFetchHistoricalSendsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2341", q.Get("occupation-group"))
		assert.Equal(t, "CifL_Rzy_Mku", q.Get("region"))
		assert.Equal(t, "2023-01-01T00:00:00Z", q.Get("published-after"))
		assert.Equal(t, "2023-12-31T00:00:00Z", q.Get("published-before"))
		resp := map[string]any{
			"total": map[string]any{"value": 0},
			"hits":  []map[string]any{},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{HistoricalURL: srv.URL}, nil)
	_, err := client.FetchHistorical(context.Background(), SearchParams{
		PublishedAfter:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		PublishedBefore: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		OccupationGroup: "2341",
		Region:          "CifL_Rzy_Mku",
	})
	require.NoError(t, err)
}

func TestFetchChangesSinceFlagsRemovals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2023-06-15T12:00:00", r.URL.Query().Get("date"))
		docs := []map[string]any{
			adJSON("live", 1700000000000),
			{
				"id":           "gone",
				"removed":      true,
				"removed_date": "2023-06-16T09:30:00",
				"timestamp":    1700000100000,
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(docs))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{StreamURL: srv.URL}, nil)
	since := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	ads, err := client.FetchChangesSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, ads, 2)

	assert.False(t, ads[0].Removed)
	assert.True(t, ads[1].Removed)
	require.NotNil(t, ads[1].RemovedAt)
	assert.Equal(t, time.Date(2023, 6, 16, 9, 30, 0, 0, time.UTC), *ads[1].RemovedAt)
}

func TestFetchSnapshotDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snapshot", r.URL.Path)
		docs := []map[string]any{
			adJSON("a1", 1700000000000),
			adJSON("a2", 1700000000000),
			adJSON("a1", 1700000500000),
		}
		require.NoError(t, json.NewEncoder(w).Encode(docs))
	}))
	defer srv.Close()

	client := NewClient(http.DefaultClient, Config{StreamURL: srv.URL}, nil)
	ads, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, ads, 2)
	assert.Equal(t, "a1", ads[0].AdID)
	assert.Equal(t, time.UnixMilli(1700000500000).UTC(), ads[0].ModifiedAt, "duplicate keeps the newest modification")
}

func TestFlattenAdDocument(t *testing.T) {
	raw := adJSON("ad-1", 1695000000000)
	raw["employer"] = map[string]any{
		"name":                "Acme AB",
		"organization_number": "556677-8899",
	}
	raw["remote_work"] = true
	raw["description"] = map[string]any{"text": "We build things."}

	data, err := json.Marshal(raw)
	require.NoError(t, err)
	var doc adDocument
	require.NoError(t, json.Unmarshal(data, &doc))

	ad := doc.flatten()
	assert.Equal(t, "ad-1", ad.AdID)
	assert.Equal(t, "DJh5_yyF_hEM", ad.ConceptID)
	assert.Equal(t, "01", ad.RegionCode)
	assert.Equal(t, "Acme AB", ad.EmployerName)
	assert.Equal(t, "556677-8899", ad.EmployerOrgNo)
	assert.Equal(t, 2, ad.VacancyCount)
	require.NotNil(t, ad.Remote)
	assert.True(t, *ad.Remote)
	require.NotNil(t, ad.Longitude)
	assert.InDelta(t, 18.07, *ad.Longitude, 1e-9)
	require.NotNil(t, ad.Latitude)
	assert.InDelta(t, 59.33, *ad.Latitude, 1e-9)
	assert.Equal(t, time.Date(2023, 4, 1, 8, 0, 0, 0, time.UTC), ad.PublishedAt)
	assert.Equal(t, time.UnixMilli(1695000000000).UTC(), ad.ModifiedAt)
}

func TestFlattenDefaultsVacancyCount(t *testing.T) {
	var doc adDocument
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x"}`), &doc))
	assert.Equal(t, 1, doc.flatten().VacancyCount)
}
