// Package server exposes the admin HTTP interface: health, metrics,
// and read-only fact and ad listings.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/storage/postgres"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// defaultListLimit caps listing responses when the caller sends none.
const defaultListLimit = 500

// FactReader lists stored fact rows.
type FactReader interface {
	ListFacts(ctx context.Context, f postgres.FactFilter) ([]pipeline.FactRow, error)
}

// AdReader lists stored job ads.
type AdReader interface {
	ListAds(ctx context.Context, f postgres.AdFilter) ([]pipeline.JobAd, error)
}

// Server wires HTTP handlers to the read stores.
type Server struct {
	router chi.Router
	facts  FactReader
	ads    AdReader
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(facts FactReader, ads AdReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{facts: facts, ads: ads, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/facts", s.listFacts)
		r.Get("/ads", s.listAds)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := postgres.FactFilter{
		OccupationCode: q.Get("occupation"),
		RegionCode:     q.Get("region"),
		Gender:         q.Get("gender"),
		MeasureName:    q.Get("measure"),
		Limit:          defaultListLimit,
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		filter.Year = year
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || limit == 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	rows, err := s.facts.ListFacts(r.Context(), filter)
	if err != nil {
		s.logger.Error("list facts failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "facts": factsPayload(rows)})
}

func (s *Server) listAds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := postgres.AdFilter{
		OccupationCode: q.Get("occupation"),
		RegionCode:     q.Get("region"),
		IncludeRemoved: q.Get("include_removed") == "true",
		Limit:          defaultListLimit,
	}
	if raw := q.Get("published_after"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "published_after must be YYYY-MM-DD")
			return
		}
		filter.PublishedAfter = t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || limit == 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	ads, err := s.ads.ListAds(r.Context(), filter)
	if err != nil {
		s.logger.Error("list ads failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(ads), "ads": ads})
}

// factPayload shapes one fact row for JSON. Value marshals to null for
// suppressed and not-applicable observations, with the status alongside.
type factPayload struct {
	SurrogateKey   string         `json:"surrogate_key"`
	Year           int            `json:"year"`
	OccupationCode string         `json:"occupation_code"`
	OccupationName string         `json:"occupation_name"`
	RegionCode     string         `json:"region_code"`
	RegionName     string         `json:"region_name"`
	Gender         string         `json:"gender"`
	MeasureName    string         `json:"measure_name"`
	Value          pipeline.Value `json:"value"`
	ValueStatus    string         `json:"value_status"`
}

func factsPayload(rows []pipeline.FactRow) []factPayload {
	out := make([]factPayload, 0, len(rows))
	for _, row := range rows {
		status := "numeric"
		switch row.Value.Kind() {
		case pipeline.ValueSuppressed:
			status = "suppressed"
		case pipeline.ValueNotApplicable:
			status = "not_applicable"
		}
		out = append(out, factPayload{
			SurrogateKey:   row.SurrogateKey,
			Year:           row.Year,
			OccupationCode: row.OccupationCode,
			OccupationName: row.OccupationName,
			RegionCode:     row.RegionCode,
			RegionName:     row.RegionName,
			Gender:         row.Gender,
			MeasureName:    row.MeasureName,
			Value:          row.Value,
			ValueStatus:    status,
		})
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
