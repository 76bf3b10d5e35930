package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// SkillStore writes enrichment terms into Postgres.
type SkillStore struct {
	pool  pgxPool
	table string
}

// NewSkillStore constructs a store on an existing pool.
func NewSkillStore(pool pgxPool, table string) (*SkillStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "ad_skills"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SkillStore{pool: pool, table: table}, nil
}

// UpsertSkills writes skill records in one transaction, keyed by
// (ad, term, type). Re-enrichment refreshes the probability.
func (s *SkillStore) UpsertSkills(ctx context.Context, skills []pipeline.SkillRecord) (int, error) {
	if len(skills) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (ad_id, term, skill_type, probability)
VALUES ($1,$2,$3,$4)
ON CONFLICT (ad_id, term, skill_type) DO UPDATE SET
	probability = EXCLUDED.probability`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin skill upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, skill := range skills {
		if _, err := tx.Exec(ctx, query,
			skill.AdID, skill.Term, string(skill.Type), skill.Probability,
		); err != nil {
			return 0, fmt.Errorf("upsert skill %s/%s: %w", skill.AdID, skill.Term, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit skill upsert: %w", err)
	}
	telemetry.ObserveRowsUpserted(s.table, len(skills))
	return len(skills), nil
}
