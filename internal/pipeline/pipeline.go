// Package pipeline orchestrates a scoring run: area overlays, zonal
// raster means, climate API retrieval, scoring, and summary aggregation.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/district"
	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/observability"
	"github.com/seamark-analytics/climrisk/internal/overlay"
	"github.com/seamark-analytics/climrisk/internal/raster"
	"github.com/seamark-analytics/climrisk/internal/resilience"
	"github.com/seamark-analytics/climrisk/internal/scorer"
	"github.com/seamark-analytics/climrisk/internal/store"
	"github.com/seamark-analytics/climrisk/internal/summary"
	"github.com/seamark-analytics/climrisk/internal/zonal"
)

// MetricFetcher retrieves per-district hazard metrics from the climate API.
type MetricFetcher interface {
	FetchTable(ctx context.Context, districts []model.District, hazard model.Hazard, period model.Period) (model.MetricTable, error)
	DeadLetters() []resilience.DLQEntry
}

// Sources holds the spatial input layers for one run. The flood layer has
// no historical counterpart.
type Sources struct {
	FloodProjected []geom.Polygonal
	SLRProjected   []geom.Polygonal
	SLRHistorical  []geom.Polygonal

	WildfireProjected  *raster.Grid
	WildfireHistorical *raster.Grid
}

// Result is the output of a completed scoring run.
type Result struct {
	RunID     string
	Scores    []model.ScoreRecord
	Edges     map[model.Hazard]model.BinEdges
	Summaries []model.HazardSummaryRecord
	Stats     []summary.Stats
	Counts    []summary.ScoreCounts
}

// Pipeline wires the scoring stages together. metrics may be nil.
type Pipeline struct {
	store   store.Store
	climate MetricFetcher
	policy  summary.MissingPolicy
	metrics *observability.Metrics
}

// New creates a Pipeline.
func New(st store.Store, climate MetricFetcher, policy summary.MissingPolicy, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		store:   st,
		climate: climate,
		policy:  policy,
		metrics: metrics,
	}
}

// Run executes the full scoring pipeline over the master district list.
func (p *Pipeline) Run(ctx context.Context, districts []model.District, loadReport *district.LoadReport, src Sources) (*Result, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting scoring run", zap.Int("districts", len(districts)))

	if p.metrics != nil {
		p.metrics.RunInProgress.Set(1)
		defer p.metrics.RunInProgress.Set(0)
	}

	res, err := p.run(ctx, run.ID, districts, src, log)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RunErrors.Inc()
		}
		if cerr := p.store.CompleteRun(ctx, run.ID, &model.RunResult{Error: err.Error()}); cerr != nil {
			log.Error("pipeline: record run failure", zap.Error(cerr))
		}
		return nil, err
	}

	result := runResult(res, loadReport, p.climate.DeadLetters())
	if err := p.store.CompleteRun(ctx, run.ID, result); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}

	log.Info("pipeline: run complete",
		zap.Int("districts", result.Districts),
		zap.Int("complete", result.Complete),
		zap.Int("incomplete", result.Incomplete),
		zap.Int("dead_letters", result.DeadLetters))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, districts []model.District, src Sources, log *zap.Logger) (*Result, error) {
	setStatus := func(status model.RunStatus) {
		if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
			log.Warn("pipeline: update run status", zap.String("status", string(status)), zap.Error(err))
		}
	}

	// Spatial metrics.
	setStatus(model.RunStatusLoading)
	in, err := p.spatialInputs(districts, src, log)
	if err != nil {
		return nil, err
	}

	// Climate API metrics.
	setStatus(model.RunStatusFetching)
	if err := p.fetchClimate(ctx, districts, in); err != nil {
		return nil, err
	}

	// Scoring.
	setStatus(model.RunStatusScoring)
	scored, err := stageTimer(p, "score", func() (*scorer.Result, error) { return scorer.Score(*in) })
	if err != nil {
		return nil, err
	}
	for h, e := range scored.Edges {
		if err := p.store.SaveEdges(ctx, runID, h, e); err != nil {
			return nil, err
		}
	}
	if err := p.store.SaveScores(ctx, runID, scored.Records); err != nil {
		return nil, err
	}
	p.countScores(scored.Records)

	// Summary join.
	setStatus(model.RunStatusSummarizing)
	agg := summary.NewAggregator(p.policy)
	summaries, err := agg.Summarize(districts, scored.Records)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveSummaries(ctx, runID, summaries); err != nil {
		return nil, err
	}

	for _, entry := range p.climate.DeadLetters() {
		if err := p.store.EnqueueDLQ(ctx, entry); err != nil {
			log.Warn("pipeline: enqueue dead letter", zap.String("id", entry.ID), zap.Error(err))
		}
	}

	if p.metrics != nil {
		p.metrics.DistrictsScored.Add(float64(len(summaries)))
	}

	return &Result{
		RunID:     runID,
		Scores:    scored.Records,
		Edges:     scored.Edges,
		Summaries: summaries,
		Stats:     summary.ComputeStats(scored.Records),
		Counts:    summary.CountScores(scored.Records),
	}, nil
}

// spatialInputs computes the overlay and zonal metric tables.
func (p *Pipeline) spatialInputs(districts []model.District, src Sources, log *zap.Logger) (*scorer.Inputs, error) {
	in := &scorer.Inputs{}

	overlays := []struct {
		name   string
		layer  []geom.Polygonal
		hazard model.Hazard
		period model.Period
		dst    *model.MetricTable
	}{
		{"flood", src.FloodProjected, model.HazardFlood, model.PeriodProjected, &in.Flood},
		{"slr projected", src.SLRProjected, model.HazardSeaLevelRise, model.PeriodProjected, &in.SLRProjected},
		{"slr historical", src.SLRHistorical, model.HazardSeaLevelRise, model.PeriodHistorical, &in.SLRHistorical},
	}
	for _, o := range overlays {
		table, err := p.stage("overlay "+o.name, func() (model.MetricTable, error) {
			return p.coverageTable(districts, o.layer, o.hazard, o.period)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s overlay", o.name)
		}
		*o.dst = table
	}

	rasters := []struct {
		name   string
		grid   *raster.Grid
		period model.Period
		dst    *model.MetricTable
	}{
		{"wildfire projected", src.WildfireProjected, model.PeriodProjected, &in.WildfireProjected},
		{"wildfire historical", src.WildfireHistorical, model.PeriodHistorical, &in.WildfireHistorical},
	}
	for _, r := range rasters {
		table, err := p.stage("zonal "+r.name, func() (model.MetricTable, error) {
			return p.zonalTable(districts, r.grid, r.period)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s zonal", r.name)
		}
		*r.dst = table
	}

	log.Info("pipeline: spatial metrics computed")
	return in, nil
}

// coverageTable runs the extent overlay and converts coverage percentages
// into a metric table. Districts whose geometry could not be processed are
// recorded as absent.
func (p *Pipeline) coverageTable(districts []model.District, layer []geom.Polygonal, hazard model.Hazard, period model.Period) (model.MetricTable, error) {
	extents := make([]overlay.Extent, 0, len(layer))
	for _, g := range layer {
		extents = append(extents, overlay.Extent{Geom: g, Period: period})
	}
	agg := overlay.NewAggregator(extents)

	coverage, report, err := agg.CoveragePercent(districts)
	if err != nil {
		return nil, err
	}

	table := make(model.MetricTable, len(districts))
	for _, d := range districts {
		if v, ok := coverage[d.ID]; ok {
			table[d.ID] = model.Metric(d.ID, hazard, period, v)
		} else {
			table[d.ID] = model.AbsentMetric(d.ID, hazard, period)
		}
	}
	if len(report.Failed) > 0 {
		zap.L().Warn("pipeline: districts excluded from overlay",
			zap.String("hazard", string(hazard)),
			zap.String("period", string(period)),
			zap.Strings("district_ids", report.Failed))
	}
	return table, nil
}

// zonalTable computes the wildfire zonal mean table. Districts outside
// raster coverage are recorded as absent.
func (p *Pipeline) zonalTable(districts []model.District, grid *raster.Grid, period model.Period) (model.MetricTable, error) {
	agg := zonal.NewAggregator(grid)
	means, uncovered, err := agg.MeanByDistrict(districts, zonal.WildfireReclass())
	if err != nil {
		return nil, err
	}

	table := make(model.MetricTable, len(districts))
	for _, d := range districts {
		if v, ok := means[d.ID]; ok {
			table[d.ID] = model.Metric(d.ID, model.HazardWildfire, period, v)
		} else {
			table[d.ID] = model.AbsentMetric(d.ID, model.HazardWildfire, period)
		}
	}
	if len(uncovered) > 0 {
		zap.L().Warn("pipeline: districts outside raster coverage",
			zap.String("period", string(period)),
			zap.Strings("district_ids", uncovered))
	}
	return table, nil
}

// fetchClimate retrieves the heat and precipitation day-count tables.
func (p *Pipeline) fetchClimate(ctx context.Context, districts []model.District, in *scorer.Inputs) error {
	fetches := []struct {
		hazard model.Hazard
		period model.Period
		dst    *model.MetricTable
	}{
		{model.HazardHeat, model.PeriodProjected, &in.HeatProjected},
		{model.HazardHeat, model.PeriodHistorical, &in.HeatHistorical},
		{model.HazardPrecip, model.PeriodProjected, &in.PrecipProjected},
		{model.HazardPrecip, model.PeriodHistorical, &in.PrecipHistorical},
	}
	for _, f := range fetches {
		table, err := p.stage("fetch "+string(f.hazard)+" "+string(f.period), func() (model.MetricTable, error) {
			return p.climate.FetchTable(ctx, districts, f.hazard, f.period)
		})
		if err != nil {
			return eris.Wrapf(err, "pipeline: fetch %s/%s", f.hazard, f.period)
		}
		*f.dst = table
	}
	return nil
}

// stage runs fn and records its duration under the given stage label.
func stageTimer[T any](p *Pipeline, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return v, err
}

func (p *Pipeline) stage(name string, fn func() (model.MetricTable, error)) (model.MetricTable, error) {
	return stageTimer(p, name, fn)
}

func (p *Pipeline) countScores(records []model.ScoreRecord) {
	if p.metrics == nil {
		return
	}
	for _, r := range records {
		p.metrics.ScoreDistribution.WithLabelValues(
			string(r.Hazard), string(r.Period), scoreLabel(r.Score)).Inc()
	}
}

func scoreLabel(s int) string {
	return strconv.Itoa(s)
}

func runResult(res *Result, loadReport *district.LoadReport, dlq []resilience.DLQEntry) *model.RunResult {
	complete := 0
	for _, s := range res.Summaries {
		if s.Complete {
			complete++
		}
	}
	out := &model.RunResult{
		Districts:   len(res.Summaries),
		Complete:    complete,
		Incomplete:  len(res.Summaries) - complete,
		DeadLetters: len(dlq),
	}
	if loadReport != nil {
		out.Repaired = len(loadReport.Repaired)
		out.Unrepairable = len(loadReport.Unrepairable)
	}
	return out
}
