package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/spkd"
)

func newPairsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairs <population>",
		Short: "Distance for every pair of trials of one unit",
		Args:  cobra.ExactArgs(1),
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

			unitIdx, _ := cmd.Flags().GetInt("unit")
			if unitIdx < 0 || unitIdx >= len(pop.Units) {
				return fmt.Errorf("unit %d out of range (population has %d units)", unitIdx, len(pop.Units))
			}
			unit := pop.Units[unitIdx]

			duration := floatFlag(cmd, "duration", pop.Duration)
			cost := floatFlag(cmd, "cost", e.cfg.Compute.Cost)
			if err := spkd.ValidateDuration(duration); err != nil {
				return err
			}
			if err := spkd.ValidateCost(cost); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmdContext(cmd))
			defer cancel()

			engine := spkd.NewEngine(e.cfg.Compute.Workers, e.logger)
			pairs, dists, err := engine.PairDistances(ctx, unit, duration, cost)
			if err != nil {
				return err
			}

			if e.jsonOut {
				rows := make([]map[string]any, len(pairs))
				for k, p := range pairs {
					rows[k] = map[string]any{"trial_i": p.I, "trial_j": p.J, "distance": dists[k]}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"unit":  unit.ID,
					"pairs": rows,
					"count": len(rows),
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TRIAL_I\tTRIAL_J\tDISTANCE")
			for k, p := range pairs {
				fmt.Fprintf(tw, "%d\t%d\t%g\n", p.I, p.J, dists[k])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("unit", 0, "Unit index within the population")
	cmd.Flags().Float64("duration", 0, "Trial duration in seconds (default: the file's duration)")
	cmd.Flags().Float64("cost", 1.0, "Shift cost per second (default from config)")

	return cmd
}
