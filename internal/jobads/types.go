// Package jobads ingests advertisements from the public employment
// service: the historical search API and the snapshot/stream API.
package jobads

import (
	"time"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
)

// adDocument mirrors the wire shape shared by the historical and stream
// endpoints. Nested objects are frequently null.
type adDocument struct {
	ID               string  `json:"id"`
	Headline         string  `json:"headline"`
	PublicationDate  string  `json:"publication_date"`
	LastPublication  string  `json:"last_publication_date"`
	Removed          bool    `json:"removed"`
	RemovedDate      string  `json:"removed_date"`
	Timestamp        int64   `json:"timestamp"`
	NumberOfVacancies *int   `json:"number_of_vacancies"`
	RemoteWork       *bool   `json:"remote_work"`
	Occupation       *struct {
		Label     string `json:"label"`
		ConceptID string `json:"concept_id"`
	} `json:"occupation_group"`
	Employer *struct {
		Name               string `json:"name"`
		OrganizationNumber string `json:"organization_number"`
	} `json:"employer"`
	WorkplaceAddress *struct {
		Region           string    `json:"region"`
		RegionCode       string    `json:"region_code"`
		Municipality     string    `json:"municipality"`
		MunicipalityCode string    `json:"municipality_code"`
		Coordinates      []float64 `json:"coordinates"` // [lon, lat]
	} `json:"workplace_address"`
	WorkingHoursType *struct {
		Label string `json:"label"`
	} `json:"working_hours_type"`
	Description *struct {
		Text string `json:"text"`
	} `json:"description"`
}

// flatten produces the canonical record. OccupationCode is left empty
// here; the caller resolves it from ConceptID through the reconciler.
func (d adDocument) flatten() pipeline.JobAd {
	ad := pipeline.JobAd{
		AdID:         d.ID,
		Headline:     d.Headline,
		VacancyCount: 1,
		Remote:       d.RemoteWork,
		Removed:      d.Removed,
	}
	if d.NumberOfVacancies != nil && *d.NumberOfVacancies > 0 {
		ad.VacancyCount = *d.NumberOfVacancies
	}
	if d.Occupation != nil {
		ad.OccupationName = d.Occupation.Label
		ad.ConceptID = d.Occupation.ConceptID
	}
	if d.Employer != nil {
		ad.EmployerName = d.Employer.Name
		ad.EmployerOrgNo = d.Employer.OrganizationNumber
	}
	if w := d.WorkplaceAddress; w != nil {
		ad.RegionCode = w.RegionCode
		ad.RegionName = w.Region
		ad.Municipality = w.Municipality
		if len(w.Coordinates) == 2 {
			lon, lat := w.Coordinates[0], w.Coordinates[1]
			ad.Longitude = &lon
			ad.Latitude = &lat
		}
	}
	if d.WorkingHoursType != nil {
		ad.WorkingHoursType = d.WorkingHoursType.Label
	}
	if d.Description != nil {
		ad.DescriptionText = d.Description.Text
	}

	ad.PublishedAt = parseAdTime(d.PublicationDate)
	ad.ModifiedAt = ad.PublishedAt
	if d.Timestamp > 0 {
		ad.ModifiedAt = time.UnixMilli(d.Timestamp).UTC()
	} else if t := parseAdTime(d.LastPublication); !t.IsZero() {
		ad.ModifiedAt = t
	}
	if d.Removed {
		removedAt := parseAdTime(d.RemovedDate)
		if removedAt.IsZero() {
			removedAt = ad.ModifiedAt
		}
		ad.RemovedAt = &removedAt
	}
	return ad
}

// parseAdTime accepts the timestamp layouts the APIs actually emit.
func parseAdTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// dedupe keeps the newest record per ad ID, preserving first-seen order.
func dedupe(ads []pipeline.JobAd) []pipeline.JobAd {
	index := make(map[string]int, len(ads))
	out := ads[:0]
	for _, ad := range ads {
		if i, seen := index[ad.AdID]; seen {
			if ad.ModifiedAt.After(out[i].ModifiedAt) {
				out[i] = ad
			}
			continue
		}
		index[ad.AdID] = len(out)
		out = append(out, ad)
	}
	return out
}
