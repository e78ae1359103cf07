package district

import (
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// shpRow is the archetype record for writing test shapefiles. Field names
// double as DBF column names.
type shpRow struct {
	geom.Polygon
	DIST_ID   string
	NAME      string
	COUNTY    string
	DIST_TYPE string
	ENROLL    int
}

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func writeShapefile(t *testing.T, rows []shpRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "districts.shp")
	enc, err := shp.NewEncoder(path, shpRow{})
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, enc.Encode(r))
	}
	enc.Close()
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeShapefile(t, []shpRow{
		{square(0, 0, 2, 2), "D1", "Alder Unified", "Alder", "unified", 1200},
		{square(4, 0, 6, 2), "D2", "Brook Elementary", "Brook", "elementary", 300},
	})

	districts, report, err := LoadShapefile(path, DefaultFields())
	require.NoError(t, err)
	require.Len(t, districts, 2)
	assert.Empty(t, report.Repaired)
	assert.Empty(t, report.Unrepairable)

	d := districts[0]
	assert.Equal(t, "D1", d.ID)
	assert.Equal(t, "Alder Unified", d.Name)
	assert.Equal(t, "Alder", d.County)
	assert.Equal(t, model.DistrictUnified, d.Type)
	assert.Equal(t, 1200, d.Enrollment)
	assert.InDelta(t, 4, d.Area(), 1e-9)
	assert.Nil(t, d.Attrs, "no columns beyond the mapped five")
}

func TestLoadShapefilePassthroughAttrs(t *testing.T) {
	// Columns beyond the five mapped ones ride along uninterpreted.
	type demRow struct {
		geom.Polygon
		DIST_ID   string
		NAME      string
		COUNTY    string
		DIST_TYPE string
		ENROLL    int
		FRPL_PCT  string
		ELL_PCT   string
	}

	path := filepath.Join(t.TempDir(), "districts.shp")
	enc, err := shp.NewEncoder(path, demRow{})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(demRow{
		square(0, 0, 2, 2), "D1", "Alder Unified", "Alder", "unified", 1200, "41.2", "12.0",
	}))
	enc.Close()

	districts, _, err := LoadShapefile(path, DefaultFields())
	require.NoError(t, err)
	require.Len(t, districts, 1)
	assert.Equal(t, map[string]string{"FRPL_PCT": "41.2", "ELL_PCT": "12.0"}, districts[0].Attrs)
}

func TestLoadShapefileDuplicateID(t *testing.T) {
	path := writeShapefile(t, []shpRow{
		{square(0, 0, 2, 2), "D1", "Alder Unified", "Alder", "unified", 1200},
		{square(4, 0, 6, 2), "D1", "Other", "Alder", "high", 50},
	})

	_, _, err := LoadShapefile(path, DefaultFields())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate district id D1")
}

func TestLoadShapefileUnknownType(t *testing.T) {
	path := writeShapefile(t, []shpRow{
		{square(0, 0, 2, 2), "D1", "Alder Unified", "Alder", "regional", 0},
	})

	_, _, err := LoadShapefile(path, DefaultFields())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown district type")
}

func TestLoadShapefileMissingPath(t *testing.T) {
	_, _, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"), DefaultFields())
	require.Error(t, err)
}

func TestLoadShapefileReportsBadGeometry(t *testing.T) {
	// A self-intersecting bowtie ring has no well-defined enclosed area.
	bowtie := geom.Polygon{{
		{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2},
	}}
	path := writeShapefile(t, []shpRow{
		{square(4, 0, 6, 2), "OK", "Fine District", "Alder", "unified", 10},
		{bowtie, "BAD", "Twisted District", "Alder", "unified", 10},
	})

	districts, report, err := LoadShapefile(path, DefaultFields())
	require.NoError(t, err)

	// The bad row stays in the master list but is reported either way.
	require.Len(t, districts, 2)
	assert.Equal(t, 1, len(report.Repaired)+len(report.Unrepairable))
}
