package main

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/export"
	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/shuffle"
	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/nvandessel/tbc/internal/spkd"
	"github.com/nvandessel/tbc/internal/store"
)

func newNullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "null <population>",
		Short: "Random-pair distance statistics for every unit",
		Long: `Compute the distance between every pair of trials of each unit and report
the mean, population standard deviation, firing rate and Fano factor.

With --shuffle every trial is first circularly shuffled within the trial
duration, giving the statistics of a timing-free null.

Examples:
  tbc null session.yaml --cost 10
  tbc null session.yaml --cost 10 --shuffle --seed 7 --store
  tbc null session.yaml --distances --arrow distances.arrow`,
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

			doShuffle, _ := cmd.Flags().GetBool("shuffle")
			seed := seedFlag(cmd)
			if seed == nil {
				// Draw one so a stored run can be reproduced.
				drawn := rand.Uint64()
				seed = &drawn
			}
			keep, _ := cmd.Flags().GetBool("distances")
			save, _ := cmd.Flags().GetBool("store")
			dbPath, _ := cmd.Flags().GetString("db")
			arrowOut, _ := cmd.Flags().GetString("arrow")
			note, _ := cmd.Flags().GetString("note")
			keep = keep || arrowOut != ""

			kind := store.KindObserved
			if doShuffle {
				pop, err = shuffle.Population(pop, seed)
				if err != nil {
					return fmt.Errorf("shuffle failed: %w", err)
				}
				kind = store.KindShuffled
			}

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

			start := time.Now()
			engine := spkd.NewEngine(e.cfg.Compute.Workers, e.logger)
			summary, err := nullstats.NewAggregator(engine).PopulationStatistics(ctx, pop.Units, duration, cost, keep)
			if err != nil {
				return err
			}
			fano := nullstats.FanoFactors(pop.Units, duration)
			elapsed := time.Since(start)

			e.logger.Info("null statistics computed", "units", summary.Len(), "workers", engine.Workers(), "elapsed", elapsed)
			e.runLog.Log(map[string]any{
				"event":      "null_stats",
				"source":     filepath.Base(args[0]),
				"kind":       string(kind),
				"units":      summary.Len(),
				"duration":   nullable(duration),
				"cost":       nullable(cost),
				"elapsed_ms": elapsed.Milliseconds(),
			})

			if arrowOut != "" {
				if err := export.WriteDistancesFile(e.path(arrowOut), export.RowsFromSummary(summary)); err != nil {
					return fmt.Errorf("failed to write arrow file: %w", err)
				}
			}

			var runID int64
			if save {
				run := store.Run{
					Kind:     kind,
					Source:   filepath.Base(args[0]),
					Duration: duration,
					Cost:     cost,
					Workers:  engine.Workers(),
					Note:     note,
				}
				if doShuffle {
					run.Seed = seed
				}
				runID, err = saveRun(cmd, e, dbPath, run, pop, summary, fano, keep)
				if err != nil {
					return err
				}
			}

			return printSummary(cmd, e, pop, summary, fano, runID)
		},
	}

	cmd.Flags().Float64("duration", 0, "Trial duration in seconds (default: the file's duration)")
	cmd.Flags().Float64("cost", 1.0, "Shift cost per second (default from config)")
	cmd.Flags().Bool("shuffle", false, "Circularly shuffle every trial before comparing")
	cmd.Flags().Uint64("seed", 0, "Seed for --shuffle (default: random, recorded with --store)")
	cmd.Flags().Bool("distances", false, "Include every pairwise distance in the output")
	cmd.Flags().Bool("store", false, "Save the run to the results database")
	cmd.Flags().String("db", "", "Results database path (default from config)")
	cmd.Flags().String("arrow", "", "Write pairwise distances to this Arrow IPC file")
	cmd.Flags().String("note", "", "Free-text note stored with the run")

	return cmd
}

func saveRun(cmd *cobra.Command, e *env, dbPath string, run store.Run, pop spiketrain.Population,
	summary nullstats.PopulationSummary, fano []float64, keep bool) (int64, error) {
	s, err := openStore(e, dbPath)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	locations := make([]string, len(pop.Units))
	for i, u := range pop.Units {
		locations[i] = u.Location
	}
	var dists []store.DistanceRecord
	if keep {
		dists = store.DistanceRecords(summary)
	}

	id, err := s.SaveRun(cmdContext(cmd), run, store.UnitStats(summary, locations, fano), dists)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	e.logger.Debug("run saved", "id", id, "db", filepath.Base(s.Path()))
	return id, nil
}

func printSummary(cmd *cobra.Command, e *env, pop spiketrain.Population,
	summary nullstats.PopulationSummary, fano []float64, runID int64) error {
	if e.jsonOut {
		units := make([]map[string]any, summary.Len())
		for i := range units {
			u := summary.Unit(i)
			row := map[string]any{
				"id":          summary.UnitIDs[i],
				"location":    pop.Units[i].Location,
				"mean":        nullable(u.Mean),
				"std":         nullable(u.Std),
				"firing_rate": nullable(u.FiringRate),
				"fano":        nullable(fano[i]),
				"pairs":       u.Pairs,
			}
			if u.Distances != nil {
				row["distances"] = nullableSlice(u.Distances)
			}
			units[i] = row
		}
		out := map[string]any{"units": units}
		if runID > 0 {
			out["run_id"] = runID
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tLOCATION\tPAIRS\tMEAN\tSTD\tRATE\tFANO")
	for i := 0; i < summary.Len(); i++ {
		u := summary.Unit(i)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			valueOrDefault(summary.UnitIDs[i], fmt.Sprintf("#%d", i)),
			valueOrDefault(pop.Units[i].Location, "-"),
			u.Pairs, formatFloat(u.Mean), formatFloat(u.Std), formatFloat(u.FiringRate), formatFloat(fano[i]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if runID > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSaved as run %d\n", runID)
	}
	return nil
}
