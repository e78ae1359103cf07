package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Inspect the district shapefile",
}

var districtsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the district shapefile and report geometry problems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Districts.Shapefile == "" {
			return fmt.Errorf("districts.shapefile is not configured")
		}

		districts, report, err := loadDistricts()
		if err != nil {
			return err
		}

		repaired := make(map[string]bool, len(report.Repaired))
		for _, id := range report.Repaired {
			repaired[id] = true
		}
		unrepairable := make(map[string]bool, len(report.Unrepairable))
		for _, id := range report.Unrepairable {
			unrepairable[id] = true
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"ID", "Name", "County", "Type", "Enrollment", "Geometry"})

		var data [][]string
		for _, d := range districts {
			status := "ok"
			switch {
			case unrepairable[d.ID]:
				status = "unrepairable"
			case repaired[d.ID]:
				status = "repaired"
			}
			data = append(data, []string{
				d.ID, d.Name, d.County, string(d.Type), strconv.Itoa(d.Enrollment), status,
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}

		fmt.Printf("%d districts, %d repaired, %d unrepairable\n",
			len(districts), len(report.Repaired), len(report.Unrepairable))
		return nil
	},
}

func init() {
	districtsCmd.AddCommand(districtsValidateCmd)
	rootCmd.AddCommand(districtsCmd)
}
