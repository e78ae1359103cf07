package district

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/op"
	"github.com/rotisserie/eris"
)

// CheckGeometry validates a polygonal geometry: it must be non-nil and
// enclose a positive area.
func CheckGeometry(g geom.Polygonal) error {
	if g == nil {
		return eris.New("district: nil geometry")
	}
	if !(g.Area() > 0) {
		return eris.New("district: geometry has zero area")
	}
	return nil
}

// Repair attempts to fix an invalid polygon. Ring orientation is normalized
// and self-intersections are resolved by unioning the polygon with itself,
// which rebuilds it through the polygon clipper. A panic inside the clipper
// is converted to an error so a single bad geometry cannot abort a batch.
func Repair(g geom.Polygonal) (fixed geom.Polygonal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("district: repair geometry: %v", r)
		}
	}()

	if g == nil {
		return nil, eris.New("district: repair nil geometry")
	}
	if err := op.FixOrientation(g); err != nil {
		return nil, eris.Wrap(err, "district: fix ring orientation")
	}
	fixed = g.Union(g)
	if fixed == nil || !(fixed.Area() > 0) {
		return nil, eris.New("district: repair produced empty geometry")
	}
	return fixed, nil
}

// UnionAll returns the set union of the given polygons as a single
// geometry. It is used to assemble a county outline from its member
// districts when a coarser fallback query area is needed.
func UnionAll(polys []geom.Polygonal) geom.Polygonal {
	var u geom.Polygonal
	for _, p := range polys {
		if p == nil {
			continue
		}
		if u == nil {
			u = p
			continue
		}
		u = u.Union(p)
	}
	return u
}
