package district

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGeometry(t *testing.T) {
	assert.Error(t, CheckGeometry(nil))

	degenerate := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}}
	assert.Error(t, CheckGeometry(degenerate))

	assert.NoError(t, CheckGeometry(square(0, 0, 1, 1)))
}

func TestRepair(t *testing.T) {
	_, err := Repair(nil)
	require.Error(t, err)

	fixed, err := Repair(square(0, 0, 2, 2))
	require.NoError(t, err)
	assert.InDelta(t, 4, fixed.Area(), 1e-9)
}

func TestUnionAll(t *testing.T) {
	u := UnionAll([]geom.Polygonal{
		square(0, 0, 1, 1),
		nil,
		square(5, 5, 6, 6),
	})
	require.NotNil(t, u)
	assert.InDelta(t, 2, u.Area(), 1e-9)

	assert.Nil(t, UnionAll(nil))
}

func TestLoadExtentsGeoJSON(t *testing.T) {
	const fc = `{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "properties": {},
	     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
	    {"type": "Feature", "properties": {},
	     "geometry": {"type": "MultiPolygon", "coordinates": [
	       [[[4,0],[5,0],[5,1],[4,1],[4,0]]],
	       [[[6,0],[7,0],[7,1],[6,1],[6,0]]]]}},
	    {"type": "Feature", "properties": {},
	     "geometry": {"type": "Point", "coordinates": [1,1]}}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "extent.geojson")
	require.NoError(t, os.WriteFile(path, []byte(fc), 0o644))

	polys, err := LoadExtentsGeoJSON(path)
	require.NoError(t, err)

	// The point feature is skipped; both polygonal features survive.
	require.Len(t, polys, 2)
	assert.InDelta(t, 4, polys[0].Area(), 1e-9)
	assert.InDelta(t, 2, polys[1].Area(), 1e-9)
}

func TestLoadExtentsGeoJSONNoPolygons(t *testing.T) {
	const fc = `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1,1]}}
	]}`
	path := filepath.Join(t.TempDir(), "points.geojson")
	require.NoError(t, os.WriteFile(path, []byte(fc), 0o644))

	_, err := LoadExtentsGeoJSON(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no polygons")
}
