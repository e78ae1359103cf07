// Package raster provides the in-memory regular grid consumed by zonal
// aggregation, plus a NetCDF loader for pre-reprojected hazard rasters.
package raster

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/rotisserie/eris"
)

// Grid is a regular raster aligned with the district layer's coordinate
// reference. Values are stored row-major with shape [ny, nx]; cell (0, 0)
// sits at the lower-left origin.
type Grid struct {
	X0, Y0 float64 // lower-left corner of the grid
	Dx, Dy float64 // cell size
	Nx, Ny int
	NoData float64

	Data *sparse.DenseArray
}

// NewGrid allocates a zero-filled grid with the given geometry.
func NewGrid(x0, y0, dx, dy float64, nx, ny int) (*Grid, error) {
	if nx <= 0 || ny <= 0 {
		return nil, eris.Errorf("raster: invalid grid size %dx%d", nx, ny)
	}
	if !(dx > 0) || !(dy > 0) {
		return nil, eris.Errorf("raster: invalid cell size %gx%g", dx, dy)
	}
	return &Grid{
		X0: x0, Y0: y0,
		Dx: dx, Dy: dy,
		Nx: nx, Ny: ny,
		NoData: math.NaN(),
		Data:   sparse.ZerosDense(ny, nx),
	}, nil
}

// Value returns the cell value at column ix, row iy.
func (g *Grid) Value(ix, iy int) float64 {
	return g.Data.Get(iy, ix)
}

// Set assigns the cell value at column ix, row iy.
func (g *Grid) Set(ix, iy int, v float64) {
	g.Data.Set(v, iy, ix)
}

// IsNoData reports whether v is the grid's no-data marker.
func (g *Grid) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == g.NoData
}

// CellPolygon returns the square covered by cell (ix, iy).
func (g *Grid) CellPolygon(ix, iy int) geom.Polygon {
	x0 := g.X0 + float64(ix)*g.Dx
	y0 := g.Y0 + float64(iy)*g.Dy
	x1 := x0 + g.Dx
	y1 := y0 + g.Dy
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

// CellRange returns the half-open column and row index ranges of cells whose
// bounds overlap b, clipped to the grid.
func (g *Grid) CellRange(b *geom.Bounds) (ix0, ix1, iy0, iy1 int) {
	ix0 = int(math.Floor((b.Min.X - g.X0) / g.Dx))
	ix1 = int(math.Ceil((b.Max.X - g.X0) / g.Dx))
	iy0 = int(math.Floor((b.Min.Y - g.Y0) / g.Dy))
	iy1 = int(math.Ceil((b.Max.Y - g.Y0) / g.Dy))
	ix0 = max(ix0, 0)
	iy0 = max(iy0, 0)
	ix1 = min(ix1, g.Nx)
	iy1 = min(iy1, g.Ny)
	return ix0, ix1, iy0, iy1
}

// Bounds returns the outer envelope of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	b.Extend(g.CellPolygon(0, 0).Bounds())
	b.Extend(g.CellPolygon(g.Nx-1, g.Ny-1).Bounds())
	return b
}
