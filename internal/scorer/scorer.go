// Package scorer converts raw per-district hazard metrics into ordinal 0-5
// risk scores using the per-hazard rules: equal-interval binning for heat,
// precipitation and sea-level-rise, fixed 20%-width bins for flood, and an
// identity mapping with rounding for wildfire.
package scorer

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/binning"
	"github.com/seamark-analytics/climrisk/internal/model"
)

// floodRangeLo and floodRangeHi bound the fixed flood coverage bins.
const (
	floodRangeLo = 0
	floodRangeHi = 100
)

// Inputs holds the raw metric tables for one scoring run. Historical tables
// may be nil for hazards without a historical counterpart; flood has no
// historical table by definition.
type Inputs struct {
	HeatProjected      model.MetricTable
	HeatHistorical     model.MetricTable
	PrecipProjected    model.MetricTable
	PrecipHistorical   model.MetricTable
	WildfireProjected  model.MetricTable
	WildfireHistorical model.MetricTable
	SLRProjected       model.MetricTable
	SLRHistorical      model.MetricTable
	Flood              model.MetricTable
}

// Result holds all score records produced by a run plus the bin edges used
// for each binned hazard. Hazards whose projected distribution was
// degenerate (no positive values) or constant have no edges entry.
type Result struct {
	Records []model.ScoreRecord
	Edges   map[model.Hazard]model.BinEdges
}

// Score applies every per-hazard scoring rule to the given inputs. Bin
// edges for the binned hazards are fit on the projected tables only and
// reapplied to the historical tables, so equal raw values score equally in
// both periods.
func Score(in Inputs) (*Result, error) {
	res := &Result{Edges: make(map[model.Hazard]model.BinEdges)}

	for _, b := range []struct {
		hazard     model.Hazard
		projected  model.MetricTable
		historical model.MetricTable
	}{
		{model.HazardHeat, in.HeatProjected, in.HeatHistorical},
		{model.HazardPrecip, in.PrecipProjected, in.PrecipHistorical},
		{model.HazardSeaLevelRise, in.SLRProjected, in.SLRHistorical},
	} {
		records, edges, err := ScoreBinned(b.hazard, b.projected, b.historical)
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, records...)
		if edges != nil {
			res.Edges[b.hazard] = *edges
		}
	}

	res.Records = append(res.Records, ScoreWildfire(model.PeriodProjected, in.WildfireProjected)...)
	res.Records = append(res.Records, ScoreWildfire(model.PeriodHistorical, in.WildfireHistorical)...)

	floodRecords, floodEdges := ScoreFlood(in.Flood)
	res.Records = append(res.Records, floodRecords...)
	res.Edges[model.HazardFlood] = floodEdges

	zap.L().Info("scorer: scoring complete",
		zap.Int("records", len(res.Records)),
		zap.Int("fitted_edge_sets", len(res.Edges)),
	)
	return res, nil
}

// ScoreBinned fits equal-interval bin edges on the projected table and
// scores both tables against them. Absent metrics pass through with Absent
// set and score 0. When the projected distribution has no positive values
// every present value scores 0; when all positive values are identical
// every positive value scores 1. In both cases the returned edges are nil
// and must not be persisted.
func ScoreBinned(h model.Hazard, projected, historical model.MetricTable) ([]model.ScoreRecord, *model.BinEdges, error) {
	edges, err := binning.Fit(projected.Values())
	switch {
	case err == nil:
		records := scoreTable(h, model.PeriodProjected, projected, func(v float64) int {
			return binning.Score(v, edges)
		})
		records = append(records, scoreTable(h, model.PeriodHistorical, historical, func(v float64) int {
			return binning.Score(v, edges)
		})...)
		return records, &edges, nil

	case eris.Is(err, binning.ErrDegenerate):
		zap.L().Warn("scorer: degenerate distribution, all scores zero",
			zap.String("hazard", string(h)),
		)
		records := scoreTable(h, model.PeriodProjected, projected, func(float64) int { return 0 })
		records = append(records, scoreTable(h, model.PeriodHistorical, historical, func(float64) int { return 0 })...)
		return records, nil, nil

	case eris.Is(err, binning.ErrConstant):
		zap.L().Warn("scorer: constant distribution, positive values score 1",
			zap.String("hazard", string(h)),
		)
		one := func(v float64) int {
			if v > 0 {
				return 1
			}
			return 0
		}
		records := scoreTable(h, model.PeriodProjected, projected, one)
		records = append(records, scoreTable(h, model.PeriodHistorical, historical, one)...)
		return records, nil, nil
	}
	return nil, nil, eris.Wrapf(err, "scorer: fit %s", h)
}

// ScoreWildfire maps zonal-mean wildfire hazard potential (already on the
// 0-5 scale after reclass) to scores. The mean is rounded to the nearest
// integer with ties rounding up; a non-zero mean that would round to 0 is
// forced to 1 so residual risk is not erased by rounding.
func ScoreWildfire(p model.Period, table model.MetricTable) []model.ScoreRecord {
	return scoreTable(model.HazardWildfire, p, table, wildfireScore)
}

func wildfireScore(raw float64) int {
	if raw <= 0 {
		return 0
	}
	s := int(math.Floor(raw + 0.5))
	if s < 1 {
		s = 1
	}
	if s > model.NumBins {
		s = model.NumBins
	}
	return s
}

// ScoreFlood scores flood coverage percentages against the fixed bins
// (0,20]->1 ... (80,100]->5, with 0 scoring 0. Flood has no historical
// counterpart; the returned records are all tagged with the projected
// period.
func ScoreFlood(table model.MetricTable) ([]model.ScoreRecord, model.BinEdges) {
	edges := binning.FixedEdges(floodRangeLo, floodRangeHi)
	records := scoreTable(model.HazardFlood, model.PeriodProjected, table, func(v float64) int {
		return binning.Score(v, edges)
	})
	return records, edges
}

// scoreTable applies fn to every present metric in the table; absent
// metrics produce records with Absent set and score 0.
func scoreTable(h model.Hazard, p model.Period, table model.MetricTable, fn func(float64) int) []model.ScoreRecord {
	if table == nil {
		return nil
	}
	records := make([]model.ScoreRecord, 0, len(table))
	for id, m := range table {
		rec := model.ScoreRecord{
			DistrictID: id,
			Hazard:     h,
			Period:     p,
			RawValue:   m.Value,
			Absent:     m.Absent,
		}
		if !m.Absent {
			rec.Score = fn(m.Value)
		}
		records = append(records, rec)
	}
	return records
}
