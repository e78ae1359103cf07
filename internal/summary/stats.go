package summary

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// Stats holds descriptive statistics for the raw values of one hazard and
// period. N counts present metrics; absent metrics are tallied separately
// and excluded from the moments.
type Stats struct {
	Hazard model.Hazard `json:"hazard"`
	Period model.Period `json:"period"`
	N      int          `json:"n"`
	Absent int          `json:"absent"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	Mean   float64      `json:"mean"`
	StdDev float64      `json:"stdev"`
}

// ScoreCounts holds the number of districts per score value for one hazard
// and period. Every score value 0-5 has an entry even when the count is
// zero.
type ScoreCounts struct {
	Hazard model.Hazard           `json:"hazard"`
	Period model.Period           `json:"period"`
	Counts [model.NumBins + 1]int `json:"counts"`
}

// ComputeStats computes per-hazard, per-period descriptive statistics over
// the raw values of the given score records, in canonical hazard order with
// projected before historical.
func ComputeStats(records []model.ScoreRecord) []Stats {
	type key struct {
		hazard model.Hazard
		period model.Period
	}
	values := make(map[key][]float64)
	absent := make(map[key]int)
	for _, r := range records {
		k := key{r.Hazard, r.Period}
		if r.Absent {
			absent[k]++
			continue
		}
		values[k] = append(values[k], r.RawValue)
	}

	var out []Stats
	for _, h := range model.Hazards() {
		for _, p := range []model.Period{model.PeriodProjected, model.PeriodHistorical} {
			k := key{h, p}
			vals := values[k]
			if len(vals) == 0 && absent[k] == 0 {
				continue
			}
			s := Stats{Hazard: h, Period: p, N: len(vals), Absent: absent[k]}
			if len(vals) > 0 {
				s.Min = floats.Min(vals)
				s.Max = floats.Max(vals)
				s.Mean = stat.Mean(vals, nil)
				if len(vals) > 1 {
					s.StdDev = stat.StdDev(vals, nil)
				}
			}
			out = append(out, s)
		}
	}
	return out
}

// CountScores tallies districts per score value for each hazard and period,
// in canonical hazard order with projected before historical.
func CountScores(records []model.ScoreRecord) []ScoreCounts {
	type key struct {
		hazard model.Hazard
		period model.Period
	}
	counts := make(map[key]*ScoreCounts)
	for _, r := range records {
		if r.Absent {
			continue
		}
		k := key{r.Hazard, r.Period}
		c, ok := counts[k]
		if !ok {
			c = &ScoreCounts{Hazard: r.Hazard, Period: r.Period}
			counts[k] = c
		}
		if r.Score >= 0 && r.Score <= model.NumBins {
			c.Counts[r.Score]++
		}
	}

	var out []ScoreCounts
	for _, h := range model.Hazards() {
		for _, p := range []model.Period{model.PeriodProjected, model.PeriodHistorical} {
			if c, ok := counts[key{h, p}]; ok {
				out = append(out, *c)
			}
		}
	}
	return out
}
