package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/shuffle"
)

func newShuffleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shuffle <population>",
		Short: "Circularly shuffle every trial of a population",
		Long: `Rotate each trial by a uniform random offset within the population
duration, wrapping spikes past the end back to the start. Spike counts are
preserved and timing relative to the stimulus is destroyed.

The same --seed always produces the same output.

Examples:
  tbc shuffle session.yaml --seed 42 --out shuffled.yaml --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			pop, err := e.loadPopulation(args[0])
			if err != nil {
				return err
			}

			seed := seedFlag(cmd)
			out, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")

			shuffled, err := shuffle.Population(pop, seed)
			if err != nil {
				return fmt.Errorf("shuffle failed: %w", err)
			}
			e.logger.Debug("population shuffled", "units", len(shuffled.Units), "seeded", seed != nil)
			return e.writePopulation(cmd, shuffled, out, format)
		},
	}

	cmd.Flags().Uint64("seed", 0, "Random seed (default: non-deterministic)")
	cmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	cmd.Flags().String("format", "json", "Output format: json or yaml")

	return cmd
}
