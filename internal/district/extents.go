package district

import (
	"encoding/json"
	"os"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	geomtw "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LoadExtentsGeoJSON reads a hazard extent layer (a GeoJSON
// FeatureCollection of polygons or multipolygons) and returns the
// polygonal geometries. Non-polygonal features are skipped with a
// warning.
func LoadExtentsGeoJSON(path string) ([]geom.Polygonal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "district: read extent layer %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "district: parse extent layer %s", path)
	}

	var polys []geom.Polygonal
	for i, f := range fc.Features {
		p, err := toPolygonal(f.Geometry)
		if err != nil {
			zap.L().Warn("district: skipping non-polygonal extent feature",
				zap.String("path", path), zap.Int("feature", i), zap.Error(err))
			continue
		}
		polys = append(polys, p)
	}
	if len(polys) == 0 {
		return nil, eris.Errorf("district: extent layer %s contains no polygons", path)
	}

	zap.L().Info("district: loaded extent layer",
		zap.String("path", path), zap.Int("polygons", len(polys)))
	return polys, nil
}

// toPolygonal converts a go-geom polygon or multipolygon to the
// planar polygon type used by the overlay and zonal aggregators.
func toPolygonal(g geomtw.T) (geom.Polygonal, error) {
	switch t := g.(type) {
	case *geomtw.Polygon:
		return ringsToPolygon(t.Coords()), nil
	case *geomtw.MultiPolygon:
		var out geom.Polygon
		for _, rings := range t.Coords() {
			out = append(out, ringsToPolygon(rings)...)
		}
		return out, nil
	default:
		return nil, eris.Errorf("district: unsupported geometry type %T", g)
	}
}

func ringsToPolygon(rings [][]geomtw.Coord) geom.Polygon {
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		r := make([]geom.Point, 0, len(ring))
		for _, c := range ring {
			r = append(r, geom.Point{X: c.X(), Y: c.Y()})
		}
		p = append(p, r)
	}
	return p
}
