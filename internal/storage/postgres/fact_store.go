// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pgxPool is the subset of pgxpool.Pool the stores need. pgxmock's
// PgxPoolIface satisfies it, so tests run against a mock.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool opens a pgx connection pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// FactStore writes tidy fact rows into Postgres.
type FactStore struct {
	pool  pgxPool
	table string
}

// NewFactStore constructs a store on an existing pool.
func NewFactStore(pool pgxPool, table string) (*FactStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "salary_facts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &FactStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *FactStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertFacts writes all rows in one transaction so a failed batch
// leaves no partial state. Conflicting surrogate keys are overwritten,
// which makes re-running a batch a no-op for unchanged data.
func (s *FactStore) UpsertFacts(ctx context.Context, rows []pipeline.FactRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	surrogate_key,
	year,
	occupation_code,
	occupation_name,
	region_code,
	region_name,
	gender,
	measure_name,
	value,
	value_status,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now()
)
ON CONFLICT (surrogate_key) DO UPDATE SET
	occupation_name = EXCLUDED.occupation_name,
	region_name = EXCLUDED.region_name,
	value = EXCLUDED.value,
	value_status = EXCLUDED.value_status,
	updated_at = now()`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin fact upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.SurrogateKey,
			row.Year,
			row.OccupationCode,
			row.OccupationName,
			row.RegionCode,
			row.RegionName,
			row.Gender,
			row.MeasureName,
			row.Value.Ptr(),
			valueStatus(row.Value),
		); err != nil {
			return 0, fmt.Errorf("upsert fact %s: %w", row.SurrogateKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit fact upsert: %w", err)
	}
	telemetry.ObserveRowsUpserted(s.table, len(rows))
	return len(rows), nil
}

// FactFilter narrows a fact listing. Zero values mean no constraint.
type FactFilter struct {
	Year           int
	OccupationCode string
	RegionCode     string
	Gender         string
	MeasureName    string
	Limit          uint64
}

// ListFacts reads fact rows matching the filter, newest years first.
func (s *FactStore) ListFacts(ctx context.Context, f FactFilter) ([]pipeline.FactRow, error) {
	builder := psql.
		Select("surrogate_key", "year", "occupation_code", "occupation_name",
			"region_code", "region_name", "gender", "measure_name", "value", "value_status").
		From(s.table).
		OrderBy("year DESC", "surrogate_key")
	if f.Year != 0 {
		builder = builder.Where(sq.Eq{"year": f.Year})
	}
	if f.OccupationCode != "" {
		builder = builder.Where(sq.Eq{"occupation_code": f.OccupationCode})
	}
	if f.RegionCode != "" {
		builder = builder.Where(sq.Eq{"region_code": f.RegionCode})
	}
	if f.Gender != "" {
		builder = builder.Where(sq.Eq{"gender": f.Gender})
	}
	if f.MeasureName != "" {
		builder = builder.Where(sq.Eq{"measure_name": f.MeasureName})
	}
	if f.Limit > 0 {
		builder = builder.Limit(f.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fact query: %w", err)
	}

	pgxRows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer pgxRows.Close()

	var out []pipeline.FactRow
	for pgxRows.Next() {
		var row pipeline.FactRow
		var value *float64
		var status string
		if err := pgxRows.Scan(&row.SurrogateKey, &row.Year, &row.OccupationCode,
			&row.OccupationName, &row.RegionCode, &row.RegionName, &row.Gender,
			&row.MeasureName, &value, &status); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		row.Value = valueFrom(value, status)
		out = append(out, row)
	}
	if err := pgxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return out, nil
}

// Value status markers stored alongside the nullable numeric column.
const (
	statusNumeric       = "numeric"
	statusSuppressed    = "suppressed"
	statusNotApplicable = "not_applicable"
)

func valueStatus(v pipeline.Value) string {
	switch v.Kind() {
	case pipeline.ValueSuppressed:
		return statusSuppressed
	case pipeline.ValueNotApplicable:
		return statusNotApplicable
	default:
		return statusNumeric
	}
}

func valueFrom(num *float64, status string) pipeline.Value {
	switch status {
	case statusSuppressed:
		return pipeline.Suppressed()
	case statusNumeric:
		if num != nil {
			return pipeline.Numeric(*num)
		}
		return pipeline.NotApplicable()
	default:
		return pipeline.NotApplicable()
	}
}
