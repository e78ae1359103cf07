package overlay

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func TestCoveragePercent(t *testing.T) {
	districts := []model.District{
		{ID: "D1", Geom: square(0, 0, 10, 10)},   // fully inside extent
		{ID: "D2", Geom: square(100, 100, 110, 110)}, // no intersection
		{ID: "D3", Geom: square(20, 0, 30, 10)},  // half covered
	}
	agg := NewAggregator([]Extent{
		{Geom: square(-5, -5, 15, 15), Period: model.PeriodProjected},
		{Geom: square(25, -5, 45, 15), Period: model.PeriodProjected},
	})

	coverage, report, err := agg.CoveragePercent(districts)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)

	assert.InDelta(t, 100, coverage["D1"], 1e-6)
	assert.Equal(t, 0.0, coverage["D2"], "district with no intersecting extent is exactly 0, not omitted")
	assert.InDelta(t, 50, coverage["D3"], 1e-6)
}

func TestCoveragePercentSumsOverlappingExtents(t *testing.T) {
	// Two identical extents both cover the district; the summing policy
	// double-counts rather than unioning.
	districts := []model.District{{ID: "D1", Geom: square(0, 0, 10, 10)}}
	agg := NewAggregator([]Extent{
		{Geom: square(-5, -5, 15, 15)},
		{Geom: square(-5, -5, 15, 15)},
	})

	coverage, _, err := agg.CoveragePercent(districts)
	require.NoError(t, err)
	assert.InDelta(t, 200, coverage["D1"], 1e-6)
}

func TestCoveragePercentZeroAreaDistrict(t *testing.T) {
	districts := []model.District{
		{ID: "degenerate", Geom: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}}}},
	}
	agg := NewAggregator(nil)

	_, _, err := agg.CoveragePercent(districts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero area")
}

func TestCoveragePercentNoExtents(t *testing.T) {
	districts := []model.District{{ID: "D1", Geom: square(0, 0, 10, 10)}}
	agg := NewAggregator(nil)

	coverage, _, err := agg.CoveragePercent(districts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, coverage["D1"])
}
