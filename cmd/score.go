package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seamark-analytics/climrisk/internal/export"
)

var scoreOutput string
var scoreFormat string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run a full scoring pass over the district shapefile",
	Long:  "Loads districts and hazard layers, fetches climate metrics, scores every district per hazard, and persists the run. Optionally writes the summary table to a file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		districts, report, err := loadDistricts()
		if err != nil {
			return err
		}
		sources, err := loadSources()
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, districts, report, sources)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Run %s complete: %d districts, %d score records.\n",
			res.RunID, len(res.Summaries), len(res.Scores))

		if scoreOutput == "" {
			return nil
		}
		switch scoreFormat {
		case "csv":
			return export.WriteCSV(scoreOutput, res.Summaries)
		case "json":
			return export.WriteJSON(scoreOutput, res.Summaries)
		case "xlsx":
			return export.WriteXLSX(scoreOutput, res.Summaries, res.Stats)
		}
		return fmt.Errorf("unsupported output format: %s", scoreFormat)
	},
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "", "write the summary table to this file")
	scoreCmd.Flags().StringVarP(&scoreFormat, "format", "f", "csv", "output format: csv, json, or xlsx")
	rootCmd.AddCommand(scoreCmd)
}
