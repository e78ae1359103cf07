package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "climrisk",
	Short: "Climate hazard risk scoring for school districts",
	Long:  "Joins district boundaries with flood, sea-level-rise, wildfire, heat, and precipitation hazard layers, scores each district 0-5 per hazard, and produces summed risk indices for projected and historical periods.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
