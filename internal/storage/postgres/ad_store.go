package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// AdStore writes job advertisements into Postgres.
type AdStore struct {
	pool  pgxPool
	table string
}

// NewAdStore constructs a store on an existing pool.
func NewAdStore(pool pgxPool, table string) (*AdStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_ads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AdStore{pool: pool, table: table}, nil
}

// UpsertAds writes all ads in one transaction. Re-ingesting an ad
// overwrites its mutable fields; the removed flag only moves towards
// removed here, MarkRemoved handles the stream's explicit removals.
func (s *AdStore) UpsertAds(ctx context.Context, ads []pipeline.JobAd) (int, error) {
	if len(ads) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	ad_id,
	headline,
	occupation_code,
	occupation_name,
	concept_id,
	region_code,
	region_name,
	municipality,
	employer_name,
	employer_org_no,
	vacancy_count,
	remote,
	latitude,
	longitude,
	published_at,
	modified_at,
	removed,
	removed_at,
	description,
	working_hours_type
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
)
ON CONFLICT (ad_id) DO UPDATE SET
	headline = EXCLUDED.headline,
	occupation_code = EXCLUDED.occupation_code,
	occupation_name = EXCLUDED.occupation_name,
	concept_id = EXCLUDED.concept_id,
	region_code = EXCLUDED.region_code,
	region_name = EXCLUDED.region_name,
	municipality = EXCLUDED.municipality,
	employer_name = EXCLUDED.employer_name,
	employer_org_no = EXCLUDED.employer_org_no,
	vacancy_count = EXCLUDED.vacancy_count,
	remote = EXCLUDED.remote,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	published_at = EXCLUDED.published_at,
	modified_at = EXCLUDED.modified_at,
	removed = %s.removed OR EXCLUDED.removed,
	removed_at = COALESCE(EXCLUDED.removed_at, %s.removed_at),
	description = EXCLUDED.description,
	working_hours_type = EXCLUDED.working_hours_type`, s.table, s.table, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin ad upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ad := range ads {
		if ad.AdID == "" {
			return 0, fmt.Errorf("ad id is required")
		}
		if _, err := tx.Exec(ctx, query,
			ad.AdID,
			ad.Headline,
			ad.OccupationCode,
			ad.OccupationName,
			ad.ConceptID,
			ad.RegionCode,
			ad.RegionName,
			ad.Municipality,
			ad.EmployerName,
			ad.EmployerOrgNo,
			ad.VacancyCount,
			ad.Remote,
			ad.Latitude,
			ad.Longitude,
			ad.PublishedAt,
			ad.ModifiedAt,
			ad.Removed,
			ad.RemovedAt,
			ad.DescriptionText,
			ad.WorkingHoursType,
		); err != nil {
			return 0, fmt.Errorf("upsert ad %s: %w", ad.AdID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ad upsert: %w", err)
	}
	telemetry.ObserveRowsUpserted(s.table, len(ads))
	return len(ads), nil
}

// MarkRemoved flags an ad as removed without deleting the row.
func (s *AdStore) MarkRemoved(ctx context.Context, adID string, removedAt time.Time) error {
	if adID == "" {
		return fmt.Errorf("ad id is required")
	}
	query := fmt.Sprintf(
		`UPDATE %s SET removed = TRUE, removed_at = $2 WHERE ad_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, adID, removedAt); err != nil {
		return fmt.Errorf("mark ad %s removed: %w", adID, err)
	}
	return nil
}

// AdFilter narrows an ad listing. Zero values mean no constraint.
type AdFilter struct {
	OccupationCode string
	RegionCode     string
	PublishedAfter time.Time
	IncludeRemoved bool
	Limit          uint64
}

// ListAds reads ads matching the filter, newest first.
func (s *AdStore) ListAds(ctx context.Context, f AdFilter) ([]pipeline.JobAd, error) {
	builder := psql.
		Select("ad_id", "headline", "occupation_code", "occupation_name", "concept_id",
			"region_code", "region_name", "municipality", "employer_name", "employer_org_no",
			"vacancy_count", "remote", "latitude", "longitude",
			"published_at", "modified_at", "removed", "removed_at",
			"description", "working_hours_type").
		From(s.table).
		OrderBy("published_at DESC", "ad_id")
	if f.OccupationCode != "" {
		builder = builder.Where(sq.Eq{"occupation_code": f.OccupationCode})
	}
	if f.RegionCode != "" {
		builder = builder.Where(sq.Eq{"region_code": f.RegionCode})
	}
	if !f.PublishedAfter.IsZero() {
		builder = builder.Where(sq.GtOrEq{"published_at": f.PublishedAfter})
	}
	if !f.IncludeRemoved {
		builder = builder.Where(sq.Eq{"removed": false})
	}
	if f.Limit > 0 {
		builder = builder.Limit(f.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ad query: %w", err)
	}

	pgxRows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ads: %w", err)
	}
	defer pgxRows.Close()

	var out []pipeline.JobAd
	for pgxRows.Next() {
		var ad pipeline.JobAd
		if err := pgxRows.Scan(&ad.AdID, &ad.Headline, &ad.OccupationCode, &ad.OccupationName,
			&ad.ConceptID, &ad.RegionCode, &ad.RegionName, &ad.Municipality,
			&ad.EmployerName, &ad.EmployerOrgNo, &ad.VacancyCount, &ad.Remote,
			&ad.Latitude, &ad.Longitude, &ad.PublishedAt, &ad.ModifiedAt,
			&ad.Removed, &ad.RemovedAt, &ad.DescriptionText, &ad.WorkingHoursType); err != nil {
			return nil, fmt.Errorf("scan ad row: %w", err)
		}
		out = append(out, ad)
	}
	if err := pgxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ads: %w", err)
	}
	return out, nil
}
