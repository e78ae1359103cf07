package raster

import (
	"os"

	"github.com/ctessum/cdf"
	"github.com/rotisserie/eris"
)

// LoadNetCDF reads a pre-reprojected, pre-cropped hazard raster from a
// NetCDF file. The grid geometry is taken from the global attributes x0,
// y0, dx, dy, nx and ny; cell values come from the named variable, with the
// variable's _FillValue attribute (when present) used as the no-data
// marker.
func LoadNetCDF(path, varName string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read NetCDF header %s", path)
	}

	x0, err := floatAttr(nc, "x0")
	if err != nil {
		return nil, err
	}
	y0, err := floatAttr(nc, "y0")
	if err != nil {
		return nil, err
	}
	dx, err := floatAttr(nc, "dx")
	if err != nil {
		return nil, err
	}
	dy, err := floatAttr(nc, "dy")
	if err != nil {
		return nil, err
	}
	nx, err := intAttr(nc, "nx")
	if err != nil {
		return nil, err
	}
	ny, err := intAttr(nc, "ny")
	if err != nil {
		return nil, err
	}

	g, err := NewGrid(x0, y0, dx, dy, nx, ny)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: grid geometry in %s", path)
	}

	data, err := readFloatVar(nc, varName)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read variable %s", varName)
	}
	if len(data) != nx*ny {
		return nil, eris.Errorf("raster: variable %s has %d values, grid needs %d",
			varName, len(data), nx*ny)
	}
	copy(g.Data.Elements, data)

	if fill := nc.Header.GetAttribute(varName, "_FillValue"); fill != nil {
		switch v := fill.(type) {
		case []float32:
			g.NoData = float64(v[0])
		case []float64:
			g.NoData = v[0]
		}
	}

	return g, nil
}

// readFloatVar reads a float32 or float64 NetCDF variable as float64.
func readFloatVar(nc *cdf.File, v string) ([]float64, error) {
	r := nc.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", v)
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, eris.Errorf("raster: variable %s is not numeric", v)
}

func floatAttr(nc *cdf.File, name string) (float64, error) {
	a := nc.Header.GetAttribute("", name)
	if a == nil {
		return 0, eris.Errorf("raster: missing global attribute %s", name)
	}
	switch v := a.(type) {
	case []float64:
		return v[0], nil
	case []float32:
		return float64(v[0]), nil
	case []int32:
		return float64(v[0]), nil
	}
	return 0, eris.Errorf("raster: global attribute %s is not numeric", name)
}

func intAttr(nc *cdf.File, name string) (int, error) {
	v, err := floatAttr(nc, name)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
