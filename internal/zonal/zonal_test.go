package zonal

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/raster"
)

// testGrid builds a 4x4 unit-cell grid with the given row-major values
// (row 0 is the bottom row).
func testGrid(t *testing.T, values [][]float64) *raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(0, 0, 1, 1, len(values[0]), len(values))
	require.NoError(t, err)
	for iy, row := range values {
		for ix, v := range row {
			g.Set(ix, iy, v)
		}
	}
	return g
}

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func TestMeanByDistrict(t *testing.T) {
	g := testGrid(t, [][]float64{
		{1, 2, 3, 4},
		{5, 5, 5, 5},
		{1, 1, 1, 1},
		{3, 3, 3, 3},
	})
	districts := []model.District{
		// Covers the bottom row only: mean of 1,2,3,4.
		{ID: "row", Geom: square(0, 0, 4, 0.9)},
		// Interior of a single cell.
		{ID: "cell", Geom: square(1.25, 1.25, 1.75, 1.75)},
	}

	means, uncovered, err := NewAggregator(g).MeanByDistrict(districts, nil)
	require.NoError(t, err)
	assert.Empty(t, uncovered)
	assert.InDelta(t, 2.5, means["row"], 1e-12)
	assert.InDelta(t, 5, means["cell"], 1e-12)
}

func TestMeanByDistrictInclusiveMembership(t *testing.T) {
	g := testGrid(t, [][]float64{
		{1, 3},
		{5, 7},
	})
	// The district straddles all four cells; each counts in full even
	// though only a sliver of some is covered.
	districts := []model.District{{ID: "D", Geom: square(0.9, 0.9, 1.1, 1.1)}}

	means, _, err := NewAggregator(g).MeanByDistrict(districts, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4, means["D"], 1e-12)
}

func TestMeanByDistrictWildfireReclass(t *testing.T) {
	// Classes 6 and 7 reclass to 0 and stay in the mean as structural zeros.
	g := testGrid(t, [][]float64{
		{4, 6},
		{7, 2},
	})
	districts := []model.District{{ID: "D", Geom: square(0, 0, 2, 2)}}

	means, _, err := NewAggregator(g).MeanByDistrict(districts, WildfireReclass())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, means["D"], 1e-12, "(4+0+0+2)/4")
}

func TestMeanByDistrictUnmappedClass(t *testing.T) {
	g := testGrid(t, [][]float64{{9}})
	districts := []model.District{{ID: "D", Geom: square(0, 0, 1, 1)}}

	_, _, err := NewAggregator(g).MeanByDistrict(districts, WildfireReclass())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmapped raster class 9")
}

func TestMeanByDistrictNoDataAndCoverage(t *testing.T) {
	g := testGrid(t, [][]float64{
		{2, math.NaN()},
		{math.NaN(), 4},
	})
	districts := []model.District{
		{ID: "partial", Geom: square(0, 0, 2, 2)},
		{ID: "outside", Geom: square(100, 100, 101, 101)},
	}

	means, uncovered, err := NewAggregator(g).MeanByDistrict(districts, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3, means["partial"], 1e-12, "no-data cells are excluded")
	assert.Equal(t, []string{"outside"}, uncovered)
	_, ok := means["outside"]
	assert.False(t, ok)
}
