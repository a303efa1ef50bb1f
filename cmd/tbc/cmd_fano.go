package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/spkd"
)

func newFanoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fano <population>",
		Short: "Fano factor of spike counts for every unit",
		Long: `Count each trial's spikes within the duration and report the
variance-to-mean ratio of the counts. Units with fewer than two trials or
no spikes report "-" (null in JSON).`,
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
			duration := floatFlag(cmd, "duration", pop.Duration)
			if err := spkd.ValidateDuration(duration); err != nil {
				return err
			}

			fano := nullstats.FanoFactors(pop.Units, duration)

			if e.jsonOut {
				units := make([]map[string]any, len(pop.Units))
				for i, u := range pop.Units {
					units[i] = map[string]any{
						"id":          u.ID,
						"fano":        nullable(fano[i]),
						"firing_rate": nullable(nullstats.FiringRate(u, duration)),
					}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"units": units})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UNIT\tTRIALS\tRATE\tFANO")
			for i, u := range pop.Units {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
					valueOrDefault(u.ID, fmt.Sprintf("#%d", i)), len(u.Trials),
					formatFloat(nullstats.FiringRate(u, duration)), formatFloat(fano[i]))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64("duration", 0, "Counting window in seconds (default: the file's duration)")

	return cmd
}
