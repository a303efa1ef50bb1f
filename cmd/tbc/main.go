package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tbc",
		Short: "Trial-by-trial spike-train comparison",
		Long: `tbc compares spike trains across trials with the Victor–Purpura
spike-train distance.

It computes random-pair null statistics per unit, Fano factors, circular
shuffles and Poisson surrogates, and an analytic estimate of the expected
distance between two Poisson trains.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Data directory; relative file arguments resolve against it")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace (default from config)")
	rootCmd.PersistentFlags().Int("workers", -1, "Concurrent distance workers, 0 for all CPUs (default from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newDistanceCmd(),
		newPairsCmd(),
		newNullCmd(),
		newFanoCmd(),
		newShuffleCmd(),
		newPoissonCmd(),
		newEstimateCmd(),
		newAlignCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
