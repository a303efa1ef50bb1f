package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/recording"
	"github.com/nvandessel/tbc/internal/spkd"
)

var errNoNWBReader = errors.New("no NWB reader built in; export the units and electrodes tables to a JSON or YAML session")

// nwbOpener handles .nwb inputs. HDF5 decoding lives outside tbc.
var nwbOpener recording.Opener = recording.OpenerFunc(func(string) (recording.Recording, error) {
	return nil, errNoNWBReader
})

func newAlignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align <session>",
		Short: "Cut a session export into stimulus-aligned trials",
		Long: `Read a session export (units and electrodes tables plus stimulus onsets)
and write a population with one trial per onset. Each trial holds the
spikes in [onset, onset+duration), shifted to start at zero. Raw .nwb
files are not decoded; export their tables to a session first.

Examples:
  tbc align session.json --duration 0.5 --out population.yaml --format yaml
  tbc align session.json --duration 1 --onsets 10,20,30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			path := e.path(args[0])
			var rec recording.Recording
			var onsets []float64
			if filepath.Ext(path) == recording.NWBExtension {
				if rec, err = recording.Open(path, nwbOpener); err != nil {
					return err
				}
			} else {
				session, err := recording.LoadSession(path)
				if err != nil {
					return fmt.Errorf("failed to load session: %w", err)
				}
				rec, onsets = session, session.StimulusOnsets
			}

			if cmd.Flags().Changed("onsets") {
				onsets, _ = cmd.Flags().GetFloat64Slice("onsets")
			}
			if len(onsets) == 0 {
				return fmt.Errorf("no stimulus onsets in session; pass --onsets")
			}

			duration := floatFlag(cmd, "duration", e.cfg.Compute.Duration)
			if err := spkd.ValidateDuration(duration); err != nil {
				return err
			}

			pop, err := recording.AlignRecording(rec, onsets, duration)
			if err != nil {
				return err
			}
			e.logger.Debug("session aligned", "units", len(pop.Units), "trials", len(onsets))

			out, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")
			return e.writePopulation(cmd, pop, out, format)
		},
	}

	cmd.Flags().Float64("duration", 1, "Trial duration in seconds (default from config)")
	cmd.Flags().Float64Slice("onsets", nil, "Stimulus onsets in seconds, overriding the session's")
	cmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	cmd.Flags().String("format", "json", "Output format: json or yaml")

	return cmd
}
