package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seamark-analytics/climrisk/internal/export"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

var exportOutput string
var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export the summary table of a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		records, err := st.SummariesForRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(records) == 0 {
			return eris.Errorf("run %s has no summary records", args[0])
		}

		switch exportFormat {
		case "csv":
			return export.WriteCSV(exportOutput, records)
		case "json":
			return export.WriteJSON(exportOutput, records)
		case "xlsx":
			scores, err := st.ScoresForRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "export scores")
			}
			return export.WriteXLSX(exportOutput, records, summary.ComputeStats(scores))
		}
		return fmt.Errorf("unsupported output format: %s", exportFormat)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "summaries.csv", "output file path")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv, json, or xlsx")
	rootCmd.AddCommand(exportCmd)
}
