package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// CheckpointStore persists poll high-water marks per source.
type CheckpointStore struct {
	pool  pgxPool
	table string
}

// NewCheckpointStore constructs a store on an existing pool.
func NewCheckpointStore(pool pgxPool, table string) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "checkpoints"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CheckpointStore{pool: pool, table: table}, nil
}

// Load returns the checkpoint for a source. The boolean is false when
// no checkpoint has been saved yet.
func (s *CheckpointStore) Load(ctx context.Context, source string) (pipeline.Checkpoint, bool, error) {
	query := fmt.Sprintf(
		`SELECT source, position, updated_at FROM %s WHERE source = $1`, s.table)

	var cp pipeline.Checkpoint
	err := s.pool.QueryRow(ctx, query, source).Scan(&cp.Source, &cp.Position, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Checkpoint{}, false, nil
	}
	if err != nil {
		return pipeline.Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", source, err)
	}
	return cp, true, nil
}

// Save upserts the checkpoint. Saved only after rows commit, so a
// crash between fetch and commit replays rather than skips.
func (s *CheckpointStore) Save(ctx context.Context, cp pipeline.Checkpoint) error {
	if cp.Source == "" {
		return fmt.Errorf("checkpoint source is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (source, position, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (source) DO UPDATE SET
	position = EXCLUDED.position,
	updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, cp.Source, cp.Position, cp.UpdatedAt); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Source, err)
	}
	return nil
}
