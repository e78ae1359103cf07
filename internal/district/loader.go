package district

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// Fields maps attribute columns in the district shapefile to the
// fields of model.District.
type Fields struct {
	ID         string `yaml:"id" mapstructure:"id"`
	Name       string `yaml:"name" mapstructure:"name"`
	County     string `yaml:"county" mapstructure:"county"`
	Type       string `yaml:"type" mapstructure:"type"`
	Enrollment string `yaml:"enrollment" mapstructure:"enrollment"`
}

// DefaultFields returns the column names used by the standard
// district layer distribution.
func DefaultFields() Fields {
	return Fields{
		ID:         "DIST_ID",
		Name:       "NAME",
		County:     "COUNTY",
		Type:       "DIST_TYPE",
		Enrollment: "ENROLL",
	}
}

// LoadReport describes geometry problems encountered while loading
// the master district layer.
type LoadReport struct {
	// Repaired lists district IDs whose geometry was invalid but
	// could be fixed.
	Repaired []string
	// Unrepairable lists district IDs whose geometry could not be
	// fixed. They remain in the master list so that downstream
	// summaries still emit a row for them, but area-based metrics
	// will exclude them.
	Unrepairable []string
}

// LoadShapefile reads the master district layer. Every row becomes a
// model.District; a duplicate district ID is a fatal error because the
// master list keys every downstream join.
func LoadShapefile(path string, fields Fields) ([]model.District, *LoadReport, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "district: open shapefile %s", path)
	}
	defer dec.Close()

	extra := extraColumns(dec, fields)
	cols := append([]string{fields.ID, fields.Name, fields.County, fields.Type, fields.Enrollment}, extra...)

	report := &LoadReport{}
	seen := make(map[string]struct{})
	var districts []model.District

	for {
		g, attrs, more := dec.DecodeRowFields(cols...)
		if !more {
			break
		}

		d, err := rowToDistrict(g, attrs, fields, extra)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[d.ID]; dup {
			return nil, nil, eris.Errorf("district: duplicate district id %s in %s", d.ID, path)
		}
		seen[d.ID] = struct{}{}

		if err := CheckGeometry(d.Geom); err != nil {
			repaired, rerr := Repair(d.Geom)
			if rerr != nil {
				zap.L().Error("district: unrepairable geometry",
					zap.String("district", d.ID), zap.Error(rerr))
				report.Unrepairable = append(report.Unrepairable, d.ID)
			} else {
				zap.L().Warn("district: repaired geometry", zap.String("district", d.ID))
				report.Repaired = append(report.Repaired, d.ID)
				d.Geom = repaired
			}
		}

		districts = append(districts, d)
	}
	if err := dec.Error(); err != nil {
		return nil, nil, eris.Wrapf(err, "district: read shapefile %s", path)
	}
	if len(districts) == 0 {
		return nil, nil, eris.Errorf("district: shapefile %s contains no rows", path)
	}

	zap.L().Info("district: loaded master layer",
		zap.String("path", path),
		zap.Int("districts", len(districts)),
		zap.Int("repaired", len(report.Repaired)),
		zap.Int("unrepairable", len(report.Unrepairable)))
	return districts, report, nil
}

// extraColumns lists the DBF columns beyond the five mapped ones. Their
// values pass through to model.District.Attrs uninterpreted.
func extraColumns(dec *shp.Decoder, fields Fields) []string {
	named := map[string]struct{}{
		strings.ToLower(fields.ID):         {},
		strings.ToLower(fields.Name):       {},
		strings.ToLower(fields.County):     {},
		strings.ToLower(fields.Type):       {},
		strings.ToLower(fields.Enrollment): {},
	}
	var extra []string
	for _, f := range dec.Fields() {
		// DBF field names are null-padded fixed-width bytes.
		raw := strings.Trim(string(f.Name[:]), "\x00")
		if i := strings.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := named[strings.ToLower(name)]; ok {
			continue
		}
		extra = append(extra, name)
	}
	return extra
}

func rowToDistrict(g geom.Geom, attrs map[string]string, fields Fields, extra []string) (model.District, error) {
	var d model.District

	id, ok := attrs[fields.ID]
	if !ok || strings.TrimSpace(id) == "" {
		return d, eris.Errorf("district: missing attribute column %s", fields.ID)
	}
	d.ID = strings.TrimSpace(id)
	d.Name = strings.TrimSpace(attrs[fields.Name])
	d.County = strings.TrimSpace(attrs[fields.County])

	dt, err := model.ParseDistrictType(strings.TrimSpace(attrs[fields.Type]))
	if err != nil {
		return d, eris.Wrapf(err, "district: row %s", d.ID)
	}
	d.Type = dt

	// DBF numeric fields can carry interleaved NUL and space padding.
	if s := strings.Trim(attrs[fields.Enrollment], "\x00 \t\r\n"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return d, eris.Errorf("district: row %s: bad enrollment %q", d.ID, s)
			}
			n = int(f)
		}
		d.Enrollment = n
	}

	if len(extra) > 0 {
		d.Attrs = make(map[string]string, len(extra))
		for _, col := range extra {
			d.Attrs[col] = strings.TrimSpace(attrs[col])
		}
	}

	poly, ok := g.(geom.Polygonal)
	if !ok {
		return d, eris.Errorf("district: row %s: geometry is %T, want polygon", d.ID, g)
	}
	d.Geom = poly

	return d, nil
}
