package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/nvandessel/tbc/internal/spkd"
)

func newDistanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Victor–Purpura distance between two spike trains",
		Long: `Compute the Victor–Purpura distance between two spike trains given as
comma-separated spike times in seconds.

Examples:
  tbc distance --first 0.1,0.5 --second 0.12,0.48 --cost 10
  tbc distance --first 0.1,0.2 --cost 0      # empty second train`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			first, _ := cmd.Flags().GetFloat64Slice("first")
			second, _ := cmd.Flags().GetFloat64Slice("second")
			duration := floatFlag(cmd, "duration", e.cfg.Compute.Duration)
			cost := floatFlag(cmd, "cost", e.cfg.Compute.Cost)

			if err := spkd.ValidateDuration(duration); err != nil {
				return err
			}
			if err := spkd.ValidateCost(cost); err != nil {
				return err
			}

			d := spkd.Distance(spiketrain.Train(first).Sorted(), spiketrain.Train(second).Sorted(), duration, cost)

			if e.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"distance": d,
					"duration": nullable(duration),
					"cost":     nullable(cost),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", d)
			return nil
		},
	}

	cmd.Flags().Float64Slice("first", nil, "Spike times of the first train")
	cmd.Flags().Float64Slice("second", nil, "Spike times of the second train")
	cmd.Flags().Float64("duration", 1.0, "Trial duration in seconds (default from config)")
	cmd.Flags().Float64("cost", 1.0, "Shift cost per second; 0 compares counts only (default from config)")

	return cmd
}
