package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seamark-analytics/climrisk/internal/export"
	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/store"
)

var edgesOutput string

var edgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "Show the latest fitted bin edges per hazard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Hazard", "E0", "E1", "E2", "E3", "E4", "E5"})

		var data [][]string
		fitted := make(map[model.Hazard]model.BinEdges)
		for _, h := range model.Hazards() {
			edges, err := st.LatestEdges(ctx, h)
			if eris.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return eris.Wrapf(err, "edges for %s", h)
			}
			fitted[h] = edges
			row := []string{string(h)}
			for _, e := range edges {
				row = append(row, fmt.Sprintf("%.3f", e))
			}
			data = append(data, row)
		}
		if len(data) == 0 {
			fmt.Fprintln(os.Stderr, "No fitted edges persisted yet.")
			return nil
		}
		if edgesOutput != "" {
			if err := export.WriteEdgesYAML(edgesOutput, fitted); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote edges for %d hazards to %s\n", len(fitted), edgesOutput)
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		return table.Render()
	},
}

func init() {
	edgesCmd.Flags().StringVarP(&edgesOutput, "output", "o", "", "also write edges to a YAML artifact")
	rootCmd.AddCommand(edgesCmd)
}
