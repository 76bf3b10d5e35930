package taxonomy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// Entry is a reconciled classification value: the canonical code plus
// its display name. Many source codes may fold onto one canonical code.
type Entry struct {
	Kind  pipeline.DimensionKind
	Code  string
	Label string
}

// Reconciler maps source-specific codes onto the canonical code set. It
// is built once per pipeline run from reference data and is read-only
// afterwards, so concurrent batches may share it without locking.
type Reconciler struct {
	occupations map[string]Entry  // SSYK code -> entry
	concepts    map[string]string // JobTech concept ID -> SSYK code
	regions     map[string]Entry  // NUTS code, county code, or name -> entry
	genders     map[string]Entry
	logger      *zap.Logger
}

// NewReconciler fetches reference data and builds the run-scoped lookup.
// The region crosswalk is validated to be a total bijection over the
// canonical region set; a hole there is a configuration error, not a
// runtime skip.
func NewReconciler(ctx context.Context, client *Client, logger *zap.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reconciler{
		occupations: make(map[string]Entry),
		concepts:    make(map[string]string),
		regions:     make(map[string]Entry),
		genders:     make(map[string]Entry),
		logger:      logger,
	}

	if err := r.buildRegions(); err != nil {
		return nil, err
	}
	r.buildGenders()

	if client != nil {
		groups, err := client.SSYKGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch ssyk reference data: %w", err)
		}
		for _, c := range groups {
			if c.SSYKCode == "" {
				continue
			}
			r.occupations[c.SSYKCode] = Entry{
				Kind:  pipeline.DimOccupation,
				Code:  c.SSYKCode,
				Label: c.Label,
			}
			if c.ConceptID != "" {
				r.concepts[c.ConceptID] = c.SSYKCode
			}
		}
		logger.Info("built occupation crosswalk", zap.Int("codes", len(r.occupations)))

		regions, err := client.Regions(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch region reference data: %w", err)
		}
		folded := 0
		for _, c := range regions {
			// Fold the employment service's county spelling ("Stockholms
			// län") onto the canonical NUTS entry via the county code.
			entry, ok := r.regions[c.CountyCode]
			if !ok || c.Label == "" {
				continue
			}
			if _, exists := r.regions[c.Label]; !exists {
				r.regions[c.Label] = entry
				folded++
			}
		}
		logger.Info("folded region labels onto crosswalk", zap.Int("labels", folded))
	}

	return r, nil
}

func (r *Reconciler) buildRegions() error {
	byName := make(map[string]string, len(nutsRegions))
	for _, re := range nutsRegions {
		if _, dup := byName[re.Name]; dup {
			return &pipeline.ConfigError{Reason: fmt.Sprintf("duplicate region name %q in crosswalk", re.Name)}
		}
		if _, dup := r.regions[re.NUTSCode]; dup {
			return &pipeline.ConfigError{Reason: fmt.Sprintf("duplicate region code %q in crosswalk", re.NUTSCode)}
		}
		byName[re.Name] = re.NUTSCode
		entry := Entry{Kind: pipeline.DimRegion, Code: re.NUTSCode, Label: re.Name}
		r.regions[re.NUTSCode] = entry
		r.regions[re.Name] = entry
	}
	for county, nuts := range countyToNUTS {
		entry, ok := r.regions[nuts]
		if !ok {
			return &pipeline.ConfigError{Reason: fmt.Sprintf("county %s maps to unknown region %s", county, nuts)}
		}
		r.regions[county] = entry
	}
	return nil
}

func (r *Reconciler) buildGenders() {
	for code, label := range map[string]string{
		"1":     "men",
		"2":     "women",
		"1+2":   "all",
		"men":   "men",
		"women": "women",
	} {
		canonical := label
		r.genders[code] = Entry{Kind: pipeline.DimGender, Code: canonical, Label: canonical}
	}
}

// Resolve maps a source code to its canonical entry. Unknown codes
// return pipeline.ErrUnmappedCode; most callers want ResolveOrRaw.
func (r *Reconciler) Resolve(kind pipeline.DimensionKind, code string) (Entry, error) {
	var entry Entry
	var ok bool
	switch kind {
	case pipeline.DimOccupation:
		entry, ok = r.occupations[code]
	case pipeline.DimRegion:
		entry, ok = r.regions[code]
	case pipeline.DimGender:
		entry, ok = r.genders[code]
	default:
		ok = false
	}
	if !ok {
		return Entry{}, fmt.Errorf("%s %q: %w", kind, code, pipeline.ErrUnmappedCode)
	}
	return entry, nil
}

// ResolveOrRaw resolves a source code, passing the raw code through as
// both canonical code and label when no crosswalk entry exists.
// Reference data is occasionally incomplete; ingestion stays resilient.
func (r *Reconciler) ResolveOrRaw(kind pipeline.DimensionKind, code string) Entry {
	entry, err := r.Resolve(kind, code)
	if err != nil {
		telemetry.ObserveUnmappedCode(string(kind))
		r.logger.Warn("no crosswalk entry, passing code through",
			zap.String("kind", string(kind)),
			zap.String("code", code))
		return Entry{Kind: kind, Code: code, Label: code}
	}
	return entry
}

// SSYKForConcept translates a JobTech concept ID to its SSYK code.
func (r *Reconciler) SSYKForConcept(conceptID string) (string, bool) {
	code, ok := r.concepts[conceptID]
	return code, ok
}

// OccupationLabel returns the display name for an SSYK code, or the
// code itself when unknown.
func (r *Reconciler) OccupationLabel(code string) string {
	return r.ResolveOrRaw(pipeline.DimOccupation, code).Label
}
