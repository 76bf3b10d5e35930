// Package pipeline defines core types shared across ingestion subsystems.
package pipeline

import (
	"time"
)

// DimensionKind identifies one axis of a statistical cube.
type DimensionKind string

// Dimension kinds recognized by the reconciler and transformer.
const (
	DimOccupation DimensionKind = "occupation"
	DimRegion     DimensionKind = "region"
	DimGender     DimensionKind = "gender"
	DimTime       DimensionKind = "time"
	DimSector     DimensionKind = "sector"
	DimMeasure    DimensionKind = "measure"
)

// CubeCell is one observation from a multidimensional statistical response.
// Dimensions maps each dimension kind to the source's raw category code.
type CubeCell struct {
	Dimensions  map[DimensionKind]string
	MeasureCode string
	Value       Value
}

// FactRow is the canonical tidy output unit written to the fact table.
// SurrogateKey is a deterministic hash of (year, occupation, region,
// gender, measure); identical logical facts always share a key.
type FactRow struct {
	SurrogateKey   string
	Year           int
	OccupationCode string
	OccupationName string
	RegionCode     string
	RegionName     string
	Gender         string
	MeasureName    string
	Value          Value
}

// JobAd is a flattened job advertisement record. Removal is recorded as
// a flag so removed ads stay available for trend analysis.
type JobAd struct {
	AdID             string
	Headline         string
	OccupationCode   string
	OccupationName   string
	ConceptID        string
	RegionCode       string
	RegionName       string
	Municipality     string
	EmployerName     string
	EmployerOrgNo    string
	VacancyCount     int
	Remote           *bool
	Latitude         *float64
	Longitude        *float64
	PublishedAt      time.Time
	ModifiedAt       time.Time
	RemovedAt        *time.Time
	Removed          bool
	DescriptionText  string
	WorkingHoursType string
}

// SkillRecord is one extracted term from the external enrichment annotator.
type SkillRecord struct {
	AdID        string
	Term        string
	Type        SkillType
	Probability float64
}

// SkillType classifies an enrichment term.
type SkillType string

// Skill types returned by the enrichment API.
const (
	SkillCompetency SkillType = "competency"
	SkillTrait      SkillType = "trait"
	SkillOccupation SkillType = "occupation"
)

// Checkpoint records the high-water mark of a checkpointed poll.
type Checkpoint struct {
	Source    string
	Position  time.Time
	UpdatedAt time.Time
}

// BatchStatus is the terminal state of one extraction batch.
type BatchStatus string

// Batch outcomes tracked in the run summary.
const (
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchSkipped   BatchStatus = "skipped"
)

// BatchReport captures the outcome of a single batch, including enough
// of the query parameters to replay a failed batch by hand.
type BatchReport struct {
	Batch       int
	Status      BatchStatus
	Occupations []string
	Years       []string
	RowsWritten int
	Retries     int
	Err         string
	Duration    time.Duration
}

// RunSummary aggregates batch outcomes for one pipeline run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Batches    []BatchReport
}

// Succeeded counts batches that committed.
func (s RunSummary) Succeeded() int { return s.count(BatchSucceeded) }

// Failed counts batches that exhausted their retry budget.
func (s RunSummary) Failed() int { return s.count(BatchFailed) }

func (s RunSummary) count(status BatchStatus) int {
	n := 0
	for _, b := range s.Batches {
		if b.Status == status {
			n++
		}
	}
	return n
}
