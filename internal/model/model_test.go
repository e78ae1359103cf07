package model

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHazard(t *testing.T) {
	for _, h := range Hazards() {
		got, err := ParseHazard(string(h))
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}

	_, err := ParseHazard("earthquake")
	assert.Error(t, err)
}

func TestParsePeriod(t *testing.T) {
	got, err := ParsePeriod("projected")
	require.NoError(t, err)
	assert.Equal(t, PeriodProjected, got)

	_, err = ParsePeriod("future")
	assert.Error(t, err)
}

func TestHasHistorical(t *testing.T) {
	assert.False(t, HazardFlood.HasHistorical())
	assert.True(t, HazardHeat.HasHistorical())
	assert.True(t, HazardSeaLevelRise.HasHistorical())
}

func TestParseDistrictType(t *testing.T) {
	got, err := ParseDistrictType("unified")
	require.NoError(t, err)
	assert.Equal(t, DistrictUnified, got)

	_, err = ParseDistrictType("charter")
	assert.Error(t, err)
}

func TestDistrictValidate(t *testing.T) {
	poly := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}}

	d := District{ID: "D1", Geom: poly}
	assert.NoError(t, d.Validate())
	assert.InDelta(t, 1, d.Area(), 1e-12)

	assert.Error(t, (&District{Geom: poly}).Validate())
	assert.Error(t, (&District{ID: "D1"}).Validate())
	assert.Zero(t, (&District{ID: "D1"}).Area())
}

func TestMetricTableValues(t *testing.T) {
	table := MetricTable{
		"A": Metric("A", HazardHeat, PeriodProjected, 10),
		"B": Metric("B", HazardHeat, PeriodProjected, 0),
		"C": AbsentMetric("C", HazardHeat, PeriodProjected),
	}
	vals := table.Values()
	assert.Len(t, vals, 2)
	assert.ElementsMatch(t, []float64{10, 0}, vals)
}

func TestBinEdges(t *testing.T) {
	edges := BinEdges{10, 20, 30, 40, 50, 60}
	require.NoError(t, edges.Validate())
	assert.InDelta(t, 10, edges.Min(), 1e-12)
	assert.InDelta(t, 60, edges.Max(), 1e-12)
	assert.InDelta(t, 10, edges.Width(), 1e-12)

	assert.Error(t, BinEdges{10, 20, 30, 40, 50, 10}.Validate())
	assert.Error(t, BinEdges{10, 20, 30, 45, 50, 60}.Validate())
	assert.Error(t, BinEdges{}.Validate())
}
