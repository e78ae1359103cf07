package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// WriteJSON writes summary records as an indented JSON array.
func WriteJSON(path string, records []model.HazardSummaryRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "export: encode json")
	}

	zap.L().Info("export: wrote json", zap.String("path", path), zap.Int("rows", len(records)))
	return nil
}
