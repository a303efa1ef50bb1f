package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/poisson"
)

func newPoissonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poisson",
		Short: "Generate synthetic Poisson spike trains",
		Long: `Generate homogeneous Poisson trials in 0.1 ms bins. Each unit draws from
its own stream derived from --seed, so seeded output is reproducible.
Without --seed every run draws a fresh sample.

Examples:
  tbc poisson --rate 20 --duration 1 --trials 50
  tbc poisson --rate 5 --duration 2 --trials 30 --units 10 --seed 3 -o surrogate.yaml --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rate, _ := cmd.Flags().GetFloat64("rate")
			trials, _ := cmd.Flags().GetInt("trials")
			units, _ := cmd.Flags().GetInt("units")
			seed := seedFlag(cmd)
			out, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")
			duration := floatFlag(cmd, "duration", e.cfg.Compute.Duration)

			pop, err := poisson.GeneratePopulation(rate, duration, trials, units, seed)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			spikes := 0
			for _, u := range pop.Units {
				for _, tr := range u.Trials {
					spikes += len(tr)
				}
			}
			e.logger.Debug("poisson population generated", "units", units, "trials", trials, "spikes", spikes)
			e.runLog.Log(map[string]any{
				"event":    "poisson",
				"rate":     rate,
				"duration": duration,
				"trials":   trials,
				"units":    units,
				"seed":     seed,
				"spikes":   spikes,
			})

			return e.writePopulation(cmd, pop, out, format)
		},
	}

	cmd.Flags().Float64("rate", 10, "Firing rate in Hz")
	cmd.Flags().Float64("duration", 1, "Trial duration in seconds (default from config)")
	cmd.Flags().Int("trials", 20, "Trials per unit")
	cmd.Flags().Int("units", 1, "Number of units")
	cmd.Flags().Uint64("seed", 0, "Random seed (default: non-deterministic)")
	cmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	cmd.Flags().String("format", "json", "Output format: json or yaml")

	return cmd
}
