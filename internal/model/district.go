package model

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// DistrictType categorizes a school district by grade span.
type DistrictType string

const (
	DistrictElementary DistrictType = "elementary"
	DistrictHigh       DistrictType = "high"
	DistrictUnified    DistrictType = "unified"
)

// ParseDistrictType converts a string to a DistrictType.
func ParseDistrictType(s string) (DistrictType, error) {
	switch DistrictType(s) {
	case DistrictElementary, DistrictHigh, DistrictUnified:
		return DistrictType(s), nil
	}
	return "", eris.Errorf("model: unknown district type %q", s)
}

// District is a school administrative boundary polygon, the unit of analysis.
type District struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	County     string         `json:"county"`
	Type       DistrictType   `json:"type"`
	Geom       geom.Polygonal `json:"-"`
	Enrollment int            `json:"enrollment,omitempty"`

	// Attrs holds the demographic passthrough columns from the master
	// layer, keyed by column name. They are never interpreted, only
	// carried into the summary table.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Validate checks the structural invariants of a district record. Geometry
// validity (self-intersection) is checked separately by the district loader,
// which can attempt repair.
func (d *District) Validate() error {
	if d.ID == "" {
		return eris.New("model: district id is empty")
	}
	if d.Geom == nil {
		return eris.Errorf("model: district %s has no geometry", d.ID)
	}
	return nil
}

// Area returns the planar area of the district polygon.
func (d *District) Area() float64 {
	if d.Geom == nil {
		return 0
	}
	return d.Geom.Area()
}
