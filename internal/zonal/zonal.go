// Package zonal computes per-district summaries of raster cell values.
package zonal

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/raster"
)

// ReclassMap maps raw raster classes to the numeric values used for
// aggregation. Reclass is applied before averaging.
type ReclassMap map[int]float64

// WildfireReclass returns the reclass map for the wildfire hazard-potential
// raster: classes 1-5 pass through unchanged, class 6 (non-burnable) and
// class 7 (water) map to 0. The zeros are structural absence of risk, not
// missing data, so they participate in the mean.
func WildfireReclass() ReclassMap {
	return ReclassMap{1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 0, 7: 0}
}

// Aggregator computes zonal means of a raster over district polygons.
type Aggregator struct {
	grid *raster.Grid
}

// NewAggregator creates an Aggregator over the given grid.
func NewAggregator(grid *raster.Grid) *Aggregator {
	return &Aggregator{grid: grid}
}

// MeanByDistrict computes the arithmetic mean of raster cell values
// attributed to each district. Cell membership is inclusive: a cell counts
// in full for every district whose polygon it overlaps at all, with no
// fractional-area weighting. No-data cells are excluded from the mean. When
// reclass is non-nil, every data cell's value must be an integer class
// present in the map; an unmapped class is an input-validation error.
//
// Districts that overlap no data cells are returned in uncovered rather
// than being given a value; the caller decides how absence of coverage is
// treated.
func (a *Aggregator) MeanByDistrict(districts []model.District, reclass ReclassMap) (means map[string]float64, uncovered []string, err error) {
	means = make(map[string]float64, len(districts))

	for i := range districts {
		d := &districts[i]
		sum, n, derr := a.meanOne(d, reclass)
		if derr != nil {
			return nil, nil, derr
		}
		if n == 0 {
			uncovered = append(uncovered, d.ID)
			continue
		}
		means[d.ID] = sum / float64(n)
	}

	if len(uncovered) > 0 {
		zap.L().Warn("zonal: districts outside raster coverage",
			zap.Int("count", len(uncovered)),
			zap.Strings("district_ids", uncovered),
		)
	}
	return means, uncovered, nil
}

// meanOne accumulates the cell sum and count for a single district.
// A clipper panic on degenerate geometry is treated as zero coverage
// for that district rather than aborting the whole raster pass.
func (a *Aggregator) meanOne(d *model.District, reclass ReclassMap) (sum float64, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("zonal: intersection failed, treating district as uncovered",
				zap.String("district", d.ID), zap.Any("panic", r))
			sum, n = 0, 0
		}
	}()

	ix0, ix1, iy0, iy1 := a.grid.CellRange(d.Geom.Bounds())
	for iy := iy0; iy < iy1; iy++ {
		for ix := ix0; ix < ix1; ix++ {
			v := a.grid.Value(ix, iy)
			if a.grid.IsNoData(v) {
				continue
			}
			cell := a.grid.CellPolygon(ix, iy)
			if cell.Intersection(d.Geom).Len() == 0 {
				continue
			}
			if reclass != nil {
				c := int(math.Round(v))
				rv, ok := reclass[c]
				if !ok {
					return 0, 0, eris.Errorf("zonal: district %s: unmapped raster class %d", d.ID, c)
				}
				v = rv
			}
			sum += v
			n++
		}
	}
	return sum, n, nil
}
