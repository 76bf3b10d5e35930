package pipeline

import (
	"context"
	"net/http"
	"time"
)

// FactStore upserts tidy fact rows keyed by surrogate key.
type FactStore interface {
	UpsertFacts(ctx context.Context, rows []FactRow) (int, error)
}

// AdStore upserts job advertisements keyed by ad ID. Removed ads are
// flagged, never deleted.
type AdStore interface {
	UpsertAds(ctx context.Context, ads []JobAd) (int, error)
	MarkRemoved(ctx context.Context, adID string, removedAt time.Time) error
}

// SkillStore upserts enrichment terms keyed by (ad, term, type).
type SkillStore interface {
	UpsertSkills(ctx context.Context, skills []SkillRecord) (int, error)
}

// CheckpointStore persists poll high-water marks per source.
type CheckpointStore interface {
	Load(ctx context.Context, source string) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// BlobStore archives raw API payloads and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes batch completion events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Doer issues HTTP requests. Satisfied by *httpclient.Client and by
// *http.Client in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
