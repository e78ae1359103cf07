package model

// HazardOutcome holds the raw value and ordinal score for one hazard in one
// period. Absent marks a district for which the raw metric was never
// obtained; its score contribution is governed by the summary aggregator's
// missing-data policy.
type HazardOutcome struct {
	Raw    float64 `json:"raw"`
	Score  int     `json:"score"`
	Absent bool    `json:"absent,omitempty"`
}

// HazardSummaryRecord is the per-district join of all hazard scores for both
// periods plus the summed hazard indices. Produced once per run by the
// summary aggregator and not mutated afterward.
type HazardSummaryRecord struct {
	DistrictID string       `json:"district_id"`
	Name       string       `json:"name"`
	County     string       `json:"county"`
	Type       DistrictType `json:"type"`
	Enrollment int          `json:"enrollment,omitempty"`

	// Attrs carries the district's demographic passthrough columns
	// unmodified from the master layer.
	Attrs map[string]string `json:"attrs,omitempty"`

	// Projected holds one outcome per hazard. Historical holds one outcome
	// per hazard except flood, which has no historical counterpart.
	Projected  map[Hazard]HazardOutcome `json:"projected"`
	Historical map[Hazard]HazardOutcome `json:"historical"`

	// HazardScore is the sum of the five projected scores. HazardScoreHist
	// is the sum of the four historical scores plus the period-invariant
	// flood score.
	HazardScore     int `json:"hazard_score"`
	HazardScoreHist int `json:"hazard_score_hist"`

	// Complete is false when any hazard outcome in either period is absent.
	Complete bool `json:"complete"`
}
