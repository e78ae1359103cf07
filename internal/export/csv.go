package export

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// WriteCSV writes summary records to path with a header row.
func WriteCSV(path string, records []model.HazardSummaryRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	attrCols := AttrColumns(records)
	w := csv.NewWriter(f)
	if err := w.Write(Header(attrCols)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range records {
		if err := w.Write(Row(r, attrCols)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.DistrictID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}

	zap.L().Info("export: wrote csv", zap.String("path", path), zap.Int("rows", len(records)))
	return nil
}
