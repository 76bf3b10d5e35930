// Package memory provides in-memory store implementations for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// FactStore keeps fact rows in-memory keyed by surrogate key.
type FactStore struct {
	mu   sync.RWMutex
	rows map[string]pipeline.FactRow
}

// NewFactStore creates an empty in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{rows: make(map[string]pipeline.FactRow)}
}

// UpsertFacts overwrites rows by surrogate key.
func (s *FactStore) UpsertFacts(_ context.Context, rows []pipeline.FactRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows[row.SurrogateKey] = row
	}
	return len(rows), nil
}

// Len reports the number of distinct stored rows.
func (s *FactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Get returns the stored row for a surrogate key.
func (s *FactStore) Get(key string) (pipeline.FactRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	return row, ok
}

// AdStore keeps job ads in-memory keyed by ad ID.
type AdStore struct {
	mu  sync.RWMutex
	ads map[string]pipeline.JobAd
}

// NewAdStore creates an empty in-memory ad store.
func NewAdStore() *AdStore {
	return &AdStore{ads: make(map[string]pipeline.JobAd)}
}

// UpsertAds overwrites ads by ID.
func (s *AdStore) UpsertAds(_ context.Context, ads []pipeline.JobAd) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ad := range ads {
		if ad.AdID == "" {
			return 0, fmt.Errorf("ad id is required")
		}
		s.ads[ad.AdID] = ad
	}
	return len(ads), nil
}

// MarkRemoved flags an ad as removed without deleting it.
func (s *AdStore) MarkRemoved(_ context.Context, adID string, removedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[adID]
	if !ok {
		return fmt.Errorf("ad %s not found", adID)
	}
	ad.Removed = true
	ad.RemovedAt = &removedAt
	s.ads[adID] = ad
	return nil
}

// Get returns the stored ad.
func (s *AdStore) Get(adID string) (pipeline.JobAd, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ad, ok := s.ads[adID]
	return ad, ok
}

// Len reports the number of distinct stored ads.
func (s *AdStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ads)
}

// SkillStore keeps enrichment terms in-memory.
type SkillStore struct {
	mu     sync.RWMutex
	skills map[string]pipeline.SkillRecord
}

// NewSkillStore creates an empty in-memory skill store.
func NewSkillStore() *SkillStore {
	return &SkillStore{skills: make(map[string]pipeline.SkillRecord)}
}

// UpsertSkills overwrites records by (ad, term, type).
func (s *SkillStore) UpsertSkills(_ context.Context, skills []pipeline.SkillRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, skill := range skills {
		key := skill.AdID + "\x00" + skill.Term + "\x00" + string(skill.Type)
		s.skills[key] = skill
	}
	return len(skills), nil
}

// Len reports the number of distinct stored records.
func (s *SkillStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skills)
}

// CheckpointStore keeps poll positions in-memory.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]pipeline.Checkpoint
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]pipeline.Checkpoint)}
}

// Load returns the stored checkpoint for a source.
func (s *CheckpointStore) Load(_ context.Context, source string) (pipeline.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[source]
	return cp, ok, nil
}

// Save overwrites the checkpoint for its source.
func (s *CheckpointStore) Save(_ context.Context, cp pipeline.Checkpoint) error {
	if cp.Source == "" {
		return fmt.Errorf("checkpoint source is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.Source] = cp
	return nil
}
