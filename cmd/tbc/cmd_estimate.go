package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/estimate"
)

func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Analytic expected distance between two Poisson trains",
		Long: `Estimate the expected Victor–Purpura distance between two independent
Poisson trains of the given rate, for one or more costs.

The shape parameters are read from --shape-params, then from
estimator.shape_params_path in config. --builtin-shape uses the published
coefficients instead.

Examples:
  tbc estimate --rate 20 --cost 0.1,1,10,100 --builtin-shape
  tbc estimate --rate 5 --cost 10 --mode per_sec --shape-params shape.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rate, _ := cmd.Flags().GetFloat64("rate")
			costs, _ := cmd.Flags().GetFloat64Slice("cost")
			modeStr, _ := cmd.Flags().GetString("mode")
			duration := floatFlag(cmd, "duration", e.cfg.Compute.Duration)

			mode, err := estimate.ParseMode(modeStr)
			if err != nil {
				return err
			}

			params, err := e.shapeParams(cmd)
			if err != nil {
				return err
			}

			est, err := estimate.NewEstimator(params)
			if err != nil {
				return err
			}

			values := make([]float64, len(costs))
			for i, c := range costs {
				if values[i], err = est.Estimate(rate, c, mode, duration); err != nil {
					return err
				}
			}

			if e.jsonOut {
				rows := make([]map[string]any, len(costs))
				for i := range costs {
					rows[i] = map[string]any{"cost": nullable(costs[i]), "estimate": nullable(values[i])}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"rate":      rate,
					"mode":      string(mode),
					"estimates": rows,
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COST\tESTIMATE")
			for i := range costs {
				fmt.Fprintf(tw, "%g\t%s\n", costs[i], formatFloat(values[i]))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64("rate", 10, "Firing rate in Hz")
	cmd.Flags().Float64Slice("cost", []float64{1}, "Shift costs per second (comma-separated)")
	cmd.Flags().String("mode", string(estimate.PerSpike), "Normalization: per_spike or per_sec")
	cmd.Flags().Float64("duration", 1, "Trial duration for per_sec and zero cost (default from config)")
	addShapeFlags(cmd)

	return cmd
}
