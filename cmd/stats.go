package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seamark-analytics/climrisk/internal/summary"
)

var statsCmd = &cobra.Command{
	Use:   "stats <run-id>",
	Short: "Show per-hazard score statistics for a run",
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

		records, err := st.ScoresForRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No score records for this run.")
			return nil
		}

		if err := printStatsTable(summary.ComputeStats(records)); err != nil {
			return err
		}
		fmt.Println()
		return printCountsTable(summary.CountScores(records))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func printStatsTable(stats []summary.Stats) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Hazard", "Period", "N", "Absent", "Min", "Max", "Mean", "StdDev"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, s := range stats {
		data = append(data, []string{
			string(s.Hazard),
			string(s.Period),
			strconv.Itoa(s.N),
			strconv.Itoa(s.Absent),
			fmt.Sprintf("%.2f", s.Min),
			fmt.Sprintf("%.2f", s.Max),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.StdDev),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func printCountsTable(counts []summary.ScoreCounts) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Hazard", "Period", "0", "1", "2", "3", "4", "5"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, c := range counts {
		row := []string{string(c.Hazard), string(c.Period)}
		for _, n := range c.Counts {
			row = append(row, strconv.Itoa(n))
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
