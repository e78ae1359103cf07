// Package summary joins per-hazard score records into per-district summary
// rows with summed hazard indices, and computes the descriptive statistics
// used for reporting.
package summary

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// MissingPolicy controls how a district with no score record for some
// hazard is treated. Absence of data is never the same as a measured zero;
// the policy only decides whether the pipeline stops or flags and
// continues.
type MissingPolicy string

const (
	// PolicyFail aborts the summary with an error naming the affected
	// districts and hazards.
	PolicyFail MissingPolicy = "fail"
	// PolicyZeroFlag substitutes 0 into the summed index but marks the
	// outcome absent and the record incomplete, and reports the districts.
	PolicyZeroFlag MissingPolicy = "zero-flag"
)

// ParseMissingPolicy converts a string to a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(s) {
	case PolicyFail, PolicyZeroFlag:
		return MissingPolicy(s), nil
	}
	return "", eris.Errorf("summary: unknown missing-data policy %q", s)
}

// Aggregator builds HazardSummaryRecords from score records.
type Aggregator struct {
	policy MissingPolicy
}

// NewAggregator creates an Aggregator with the given missing-data policy.
func NewAggregator(policy MissingPolicy) *Aggregator {
	return &Aggregator{policy: policy}
}

type recordKey struct {
	district string
	hazard   model.Hazard
	period   model.Period
}

// Summarize joins all score records by district and produces one summary
// record per district in the master list, in master-list order. Every
// district gets a row even when some hazards are absent; the summed
// hazard_score_hist substitutes the period-invariant flood score for the
// missing historical flood term.
func (a *Aggregator) Summarize(districts []model.District, records []model.ScoreRecord) ([]model.HazardSummaryRecord, error) {
	byKey := make(map[recordKey]model.ScoreRecord, len(records))
	for _, r := range records {
		byKey[recordKey{r.DistrictID, r.Hazard, r.Period}] = r
	}

	var missing []string
	out := make([]model.HazardSummaryRecord, 0, len(districts))

	for i := range districts {
		d := &districts[i]
		rec := model.HazardSummaryRecord{
			DistrictID: d.ID,
			Name:       d.Name,
			County:     d.County,
			Type:       d.Type,
			Enrollment: d.Enrollment,
			Attrs:      d.Attrs,
			Projected:  make(map[model.Hazard]model.HazardOutcome, len(model.Hazards())),
			Historical: make(map[model.Hazard]model.HazardOutcome, len(model.Hazards())-1),
			Complete:   true,
		}

		for _, h := range model.Hazards() {
			proj, ok := byKey[recordKey{d.ID, h, model.PeriodProjected}]
			outcome := toOutcome(proj, ok)
			rec.Projected[h] = outcome
			rec.HazardScore += outcome.Score
			if outcome.Absent {
				rec.Complete = false
				missing = append(missing, d.ID+"/"+string(h))
			}

			histScore := outcome.Score // flood score is reused for the historical sum
			if h.HasHistorical() {
				hist, ok := byKey[recordKey{d.ID, h, model.PeriodHistorical}]
				histOutcome := toOutcome(hist, ok)
				rec.Historical[h] = histOutcome
				histScore = histOutcome.Score
				if histOutcome.Absent {
					rec.Complete = false
					missing = append(missing, d.ID+"/"+string(h)+"/hist")
				}
			}
			rec.HazardScoreHist += histScore
		}

		out = append(out, rec)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		if a.policy == PolicyFail {
			return nil, eris.Errorf("summary: missing hazard scores for %v", missing)
		}
		zap.L().Warn("summary: districts with absent hazard scores",
			zap.Int("count", len(missing)),
			zap.Strings("missing", missing),
		)
	}

	return out, nil
}

// toOutcome converts a score record to an outcome; a record that does not
// exist at all is treated as absent data, the same as a record the
// retrieval layer explicitly marked absent.
func toOutcome(r model.ScoreRecord, ok bool) model.HazardOutcome {
	if !ok || r.Absent {
		return model.HazardOutcome{Absent: true}
	}
	return model.HazardOutcome{Raw: r.RawValue, Score: r.Score}
}
