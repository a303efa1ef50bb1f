package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/export"
	"github.com/nvandessel/tbc/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved null-statistics runs",
		Long: `List, show, export and delete runs saved with "tbc null --store".

Examples:
  tbc runs list
  tbc runs show 3 --distances
  tbc runs export 3 distances.arrow
  tbc runs delete 3
  tbc runs prune --keep 10 --older-than 30d`,
	}

	cmd.PersistentFlags().String("db", "", "Results database path (default from config)")

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
		newRunsPruneCmd(),
	)

	return cmd
}

func openRunStore(cmd *cobra.Command) (*env, *store.SQLiteRunStore, error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	dbPath, _ := cmd.Flags().GetString("db")
	s, err := openStore(e, dbPath)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, s, nil
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id: %s", arg)
	}
	return id, nil
}

func runJSON(r store.Run) map[string]any {
	out := map[string]any{
		"id":         r.ID,
		"created_at": r.CreatedAt,
		"kind":       string(r.Kind),
		"source":     r.Source,
		"duration":   r.Duration,
		"cost":       nullable(r.Cost),
		"workers":    r.Workers,
	}
	if r.Seed != nil {
		out["seed"] = *r.Seed
	}
	if r.Note != "" {
		out["note"] = r.Note
	}
	return out
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			defer s.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := s.ListRuns(cmdContext(cmd), limit)
			if err != nil {
				return err
			}

			if e.jsonOut {
				rows := make([]map[string]any, len(runs))
				for i, r := range runs {
					rows[i] = runJSON(r)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": rows, "count": len(rows)})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs saved.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tKIND\tSOURCE\tDURATION\tCOST")
			for _, r := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%g\t%g\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Kind,
					valueOrDefault(r.Source, "-"), r.Duration, r.Cost)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the unit statistics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			e, s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			defer s.Close()

			ctx := cmdContext(cmd)
			detail, err := s.GetRun(ctx, id)
			if err != nil {
				return err
			}

			withDistances, _ := cmd.Flags().GetBool("distances")
			var dists []store.DistanceRecord
			if withDistances {
				if dists, err = s.RunDistances(ctx, id, -1); err != nil {
					return err
				}
			}

			if e.jsonOut {
				units := make([]map[string]any, len(detail.Units))
				for i, u := range detail.Units {
					units[i] = map[string]any{
						"unit_index":  u.UnitIndex,
						"id":          u.UnitID,
						"location":    u.Location,
						"mean":        nullable(u.Mean),
						"std":         nullable(u.Std),
						"firing_rate": nullable(u.FiringRate),
						"fano":        nullable(u.Fano),
						"pairs":       u.Pairs,
					}
				}
				out := map[string]any{"run": runJSON(detail.Run), "units": units}
				if withDistances {
					rows := make([]map[string]any, len(dists))
					for i, d := range dists {
						rows[i] = map[string]any{
							"unit_index": d.UnitIndex,
							"trial_i":    d.TrialI,
							"trial_j":    d.TrialJ,
							"distance":   nullable(d.Distance),
						}
					}
					out["distances"] = rows
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			r := detail.Run
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run %d (%s) from %s\n", r.ID, r.Kind, valueOrDefault(r.Source, "-"))
			fmt.Fprintf(w, "  created:  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "  duration: %g  cost: %g  workers: %d\n", r.Duration, r.Cost, r.Workers)
			if r.Seed != nil {
				fmt.Fprintf(w, "  seed:     %d\n", *r.Seed)
			}
			if r.Note != "" {
				fmt.Fprintf(w, "  note:     %s\n", r.Note)
			}
			fmt.Fprintln(w)

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UNIT\tLOCATION\tPAIRS\tMEAN\tSTD\tRATE\tFANO")
			for _, u := range detail.Units {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					valueOrDefault(u.UnitID, fmt.Sprintf("#%d", u.UnitIndex)), valueOrDefault(u.Location, "-"),
					u.Pairs, formatFloat(u.Mean), formatFloat(u.Std), formatFloat(u.FiringRate), formatFloat(u.Fano))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if withDistances {
				fmt.Fprintln(w)
				tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "UNIT\tTRIAL_I\tTRIAL_J\tDISTANCE")
				for _, d := range dists {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", d.UnitIndex, d.TrialI, d.TrialJ, formatFloat(d.Distance))
				}
				return tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().Bool("distances", false, "Also print every stored pairwise distance")

	return cmd
}

func newRunsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> <file>",
		Short: "Write a run's stored distances to an Arrow IPC file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			e, s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			defer s.Close()

			ctx := cmdContext(cmd)
			detail, err := s.GetRun(ctx, id)
			if err != nil {
				return err
			}
			dists, err := s.RunDistances(ctx, id, -1)
			if err != nil {
				return err
			}
			if len(dists) == 0 {
				return fmt.Errorf("run %d has no stored distances (save with --distances)", id)
			}

			unitIDs := make(map[int]string, len(detail.Units))
			for _, u := range detail.Units {
				unitIDs[u.UnitIndex] = u.UnitID
			}
			rows := make([]export.DistanceRow, len(dists))
			for i, d := range dists {
				rows[i] = export.DistanceRow{
					UnitIndex: d.UnitIndex,
					UnitID:    unitIDs[d.UnitIndex],
					TrialI:    d.TrialI,
					TrialJ:    d.TrialJ,
					Distance:  d.Distance,
				}
			}

			if err := export.WriteDistancesFile(e.path(args[1]), rows); err != nil {
				return fmt.Errorf("failed to write arrow file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d distances to %s\n", len(rows), args[1])
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			e, s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			defer s.Close()

			if err := s.DeleteRun(cmdContext(cmd), id); err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "deleted", "id": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
			return nil
		},
	}
}

func newRunsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		Long: `Delete runs not kept by the retention flags. With both --keep and
--older-than a run survives if either keeps it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keepN, _ := cmd.Flags().GetInt("keep")
			olderThan, _ := cmd.Flags().GetString("older-than")

			var policies []store.RetentionPolicy
			if cmd.Flags().Changed("keep") {
				if keepN < 0 {
					return fmt.Errorf("--keep must be non-negative, got %d", keepN)
				}
				policies = append(policies, &store.CountPolicy{MaxCount: keepN})
			}
			if olderThan != "" {
				age, err := store.ParseAge(olderThan)
				if err != nil {
					return err
				}
				policies = append(policies, &store.AgePolicy{MaxAge: age})
			}
			if len(policies) == 0 {
				return fmt.Errorf("specify --keep or --older-than")
			}

			e, s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			defer s.Close()

			deleted, err := s.Prune(cmdContext(cmd), &store.CompositePolicy{Policies: policies})
			if err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s)\n", len(deleted))
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep this many most recent runs")
	cmd.Flags().String("older-than", "", "Delete runs older than this (e.g. 720h, 30d, 2w)")

	return cmd
}
