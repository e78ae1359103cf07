// Package overlay computes the fraction of each district's area covered by
// hazard extent polygons, such as flood zones or sea-level-rise inundation.
package overlay

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/district"
	"github.com/seamark-analytics/climrisk/internal/model"
)

// Extent is one hazard extent polygon with its source-period tag.
type Extent struct {
	Geom   geom.Polygonal
	Period model.Period
}

// Bounds implements the rtree spatial interface.
func (e *Extent) Bounds() *geom.Bounds {
	return e.Geom.Bounds()
}

// Similar implements geom.Geom by delegating to the extent polygon.
func (e *Extent) Similar(g geom.Geom, tolerance float64) bool {
	return e.Geom.Similar(g, tolerance)
}

// Transform implements geom.Geom by delegating to the extent polygon.
func (e *Extent) Transform(t proj.Transformer) (geom.Geom, error) {
	return e.Geom.Transform(t)
}

// Len implements geom.Geom by delegating to the extent polygon.
func (e *Extent) Len() int {
	return e.Geom.Len()
}

// Points implements geom.Geom by delegating to the extent polygon.
func (e *Extent) Points() func() geom.Point {
	return e.Geom.Points()
}

// Report collects per-district geometry problems encountered during an
// overlay pass. Districts listed in Failed were excluded from the coverage
// result; districts listed in Repaired were fixed in place and included.
type Report struct {
	Repaired []string
	Failed   []string
}

// Aggregator computes per-district coverage percentages against an indexed
// set of extent polygons.
type Aggregator struct {
	tree *rtree.Rtree
	n    int
}

// NewAggregator indexes the given extent polygons for overlay queries.
func NewAggregator(extents []Extent) *Aggregator {
	tree := rtree.NewTree(25, 50)
	for i := range extents {
		tree.Insert(&extents[i])
	}
	return &Aggregator{tree: tree, n: len(extents)}
}

// CoveragePercent computes, for every district, the percentage of its area
// covered by the extent polygons. Intersection areas are summed across
// extent polygons rather than unioned; raw extents are allowed to overlap
// and the defined policy accepts the resulting double-count. Districts with
// no intersecting extent receive exactly 0. A district with zero recorded
// area is a fatal input-validation error. Districts whose geometry cannot
// be processed even after repair are reported in the Report and excluded
// from the result.
func (a *Aggregator) CoveragePercent(districts []model.District) (map[string]float64, *Report, error) {
	coverage := make(map[string]float64, len(districts))
	report := &Report{}

	for i := range districts {
		d := &districts[i]
		area := d.Area()
		if !(area > 0) {
			return nil, nil, eris.Errorf("overlay: district %s has zero area", d.ID)
		}

		sum, err := a.intersectionArea(d.Geom)
		if err != nil {
			// Clipper choked on the raw geometry; repair and retry once.
			fixed, rerr := district.Repair(d.Geom)
			if rerr != nil {
				zap.L().Warn("overlay: district geometry unrepairable",
					zap.String("district_id", d.ID),
					zap.Error(rerr),
				)
				report.Failed = append(report.Failed, d.ID)
				continue
			}
			d.Geom = fixed
			area = d.Area()
			if !(area > 0) {
				return nil, nil, eris.Errorf("overlay: district %s has zero area after repair", d.ID)
			}
			report.Repaired = append(report.Repaired, d.ID)
			sum, err = a.intersectionArea(d.Geom)
			if err != nil {
				report.Failed = append(report.Failed, d.ID)
				report.Repaired = report.Repaired[:len(report.Repaired)-1]
				continue
			}
		}

		coverage[d.ID] = sum / area * 100
	}

	return coverage, report, nil
}

// intersectionArea sums the intersection areas of g against all indexed
// extents. Clipper panics are converted to errors.
func (a *Aggregator) intersectionArea(g geom.Polygonal) (sum float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("overlay: intersection: %v", r)
		}
	}()

	for _, item := range a.tree.SearchIntersect(g.Bounds()) {
		e := item.(*Extent)
		isect := g.Intersection(e.Geom)
		if isect == nil {
			continue
		}
		sum += isect.Area()
	}
	return sum, nil
}
