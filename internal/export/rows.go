// Package export writes hazard summary records to CSV, XLSX, and JSON.
package export

import (
	"sort"
	"strconv"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// AttrColumns returns the sorted union of demographic passthrough column
// names across records, so every row renders the same columns even when
// some districts lack a value.
func AttrColumns(records []model.HazardSummaryRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for col := range r.Attrs {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Header returns the flat column layout shared by the CSV and XLSX
// writers. Demographic passthrough columns follow the identity columns;
// hazards appear in canonical order, projected columns before historical
// ones; flood has no historical columns.
func Header(attrCols []string) []string {
	cols := []string{"district_id", "name", "county", "type", "enrollment"}
	cols = append(cols, attrCols...)
	for _, h := range model.Hazards() {
		cols = append(cols, string(h)+"_raw", string(h)+"_score")
	}
	for _, h := range model.Hazards() {
		if !h.HasHistorical() {
			continue
		}
		cols = append(cols, string(h)+"_hist_raw", string(h)+"_hist_score")
	}
	cols = append(cols, "hazard_score", "hazard_score_hist", "complete")
	return cols
}

// Row flattens one summary record into the Header column order. Absent
// metrics render as an empty raw cell; their score cell still carries
// the zero the scorer assigned.
func Row(r model.HazardSummaryRecord, attrCols []string) []string {
	row := []string{
		r.DistrictID,
		r.Name,
		r.County,
		string(r.Type),
		strconv.Itoa(r.Enrollment),
	}
	for _, col := range attrCols {
		row = append(row, r.Attrs[col])
	}
	for _, h := range model.Hazards() {
		row = append(row, outcomeCells(r.Projected[h])...)
	}
	for _, h := range model.Hazards() {
		if !h.HasHistorical() {
			continue
		}
		row = append(row, outcomeCells(r.Historical[h])...)
	}
	row = append(row,
		strconv.Itoa(r.HazardScore),
		strconv.Itoa(r.HazardScoreHist),
		strconv.FormatBool(r.Complete),
	)
	return row
}

func outcomeCells(o model.HazardOutcome) []string {
	raw := ""
	if !o.Absent {
		raw = strconv.FormatFloat(o.Raw, 'f', -1, 64)
	}
	return []string{raw, strconv.Itoa(o.Score)}
}
