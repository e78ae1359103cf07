package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

// WriteXLSX writes a workbook with a Summary sheet and, when stats are
// provided, a Stats sheet with per-hazard descriptive statistics.
func WriteXLSX(path string, records []model.HazardSummaryRecord, stats []summary.Stats) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	attrCols := AttrColumns(records)
	hdr := sheet.AddRow()
	for _, col := range Header(attrCols) {
		hdr.AddCell().SetString(col)
	}
	for _, r := range records {
		row := sheet.AddRow()
		for _, cell := range Row(r, attrCols) {
			row.AddCell().SetString(cell)
		}
	}

	if len(stats) > 0 {
		if err := addStatsSheet(f, stats); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: wrote xlsx", zap.String("path", path), zap.Int("rows", len(records)))
	return nil
}

func addStatsSheet(f *xlsx.File, stats []summary.Stats) error {
	sheet, err := f.AddSheet("Stats")
	if err != nil {
		return eris.Wrap(err, "export: add stats sheet")
	}
	hdr := sheet.AddRow()
	for _, col := range []string{"hazard", "period", "n", "absent", "min", "max", "mean", "stddev"} {
		hdr.AddCell().SetString(col)
	}
	for _, s := range stats {
		row := sheet.AddRow()
		row.AddCell().SetString(string(s.Hazard))
		row.AddCell().SetString(string(s.Period))
		row.AddCell().SetInt(s.N)
		row.AddCell().SetInt(s.Absent)
		row.AddCell().SetFloat(s.Min)
		row.AddCell().SetFloat(s.Max)
		row.AddCell().SetFloat(s.Mean)
		row.AddCell().SetFloat(s.StdDev)
	}
	return nil
}
