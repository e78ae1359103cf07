// Package model defines the core domain types for district hazard scoring.
package model

import "github.com/rotisserie/eris"

// Hazard identifies one climate/environmental risk category.
type Hazard string

const (
	HazardHeat         Hazard = "heat"
	HazardPrecip       Hazard = "precip"
	HazardWildfire     Hazard = "wildfire"
	HazardSeaLevelRise Hazard = "slr"
	HazardFlood        Hazard = "flood"
)

// Hazards returns all hazards in canonical reporting order.
func Hazards() []Hazard {
	return []Hazard{HazardHeat, HazardPrecip, HazardWildfire, HazardSeaLevelRise, HazardFlood}
}

// ParseHazard converts a string to a Hazard, accepting the canonical names.
func ParseHazard(s string) (Hazard, error) {
	switch Hazard(s) {
	case HazardHeat, HazardPrecip, HazardWildfire, HazardSeaLevelRise, HazardFlood:
		return Hazard(s), nil
	}
	return "", eris.Errorf("model: unknown hazard %q", s)
}

// Period distinguishes the projected (future modeled) time window from the
// historical/observed baseline.
type Period string

const (
	PeriodProjected  Period = "projected"
	PeriodHistorical Period = "historical"
)

// ParsePeriod converts a string to a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodProjected, PeriodHistorical:
		return Period(s), nil
	}
	return "", eris.Errorf("model: unknown period %q", s)
}

// HasHistorical reports whether a hazard is scored for the historical period.
// Flood exposure has no historical counterpart; its current-period score is
// reused when summing historical scores.
func (h Hazard) HasHistorical() bool {
	return h != HazardFlood
}
