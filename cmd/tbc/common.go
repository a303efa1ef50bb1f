package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/config"
	"github.com/nvandessel/tbc/internal/estimate"
	"github.com/nvandessel/tbc/internal/logging"
	"github.com/nvandessel/tbc/internal/recording"
	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/nvandessel/tbc/internal/store"
)

// env is what every computing command needs: merged settings, loggers and
// output mode.
type env struct {
	cfg     *config.TbcConfig
	logger  *slog.Logger
	runLog  *logging.RunLogger
	jsonOut bool
	root    string
}

// loadEnv merges config (file and TBC_* env) with the global flags.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers >= 0 {
		cfg.Compute.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &env{cfg: cfg}
	e.jsonOut, _ = cmd.Flags().GetBool("json")
	e.root, _ = cmd.Flags().GetString("root")
	e.logger = logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

	if dir, err := config.Dir(); err == nil {
		e.runLog = logging.NewRunLogger(dir, cfg.Logging.Level)
	}
	return e, nil
}

// Close flushes the run log.
func (e *env) Close() {
	e.runLog.Close()
}

// path resolves a file argument against --root.
func (e *env) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.root, p)
}

// floatFlag returns the flag value if set on the command line, else def.
func floatFlag(cmd *cobra.Command, name string, def float64) float64 {
	if !cmd.Flags().Changed(name) {
		return def
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return v
}

func addShapeFlags(cmd *cobra.Command) {
	cmd.Flags().String("shape-params", "", "Shape-parameter file (.json, .yaml or .toml)")
	cmd.Flags().Bool("builtin-shape", false, "Use the built-in shape parameters")
}

// shapeParams resolves --builtin-shape, then --shape-params, then
// estimator.shape_params_path. There is no implicit default.
func (e *env) shapeParams(cmd *cobra.Command) (*estimate.ShapeParams, error) {
	if builtin, _ := cmd.Flags().GetBool("builtin-shape"); builtin {
		return estimate.DefaultShapeParams(), nil
	}
	path, _ := cmd.Flags().GetString("shape-params")
	if path == "" {
		path = e.cfg.Estimator.ShapeParamsPath
	} else {
		path = e.path(path)
	}
	params, err := estimate.LoadShapeParams(path)
	if errors.Is(err, estimate.ErrShapeParamsNotFound) {
		return nil, fmt.Errorf("%w (set --shape-params, estimator.shape_params_path or --builtin-shape)", err)
	}
	return params, err
}

// seedFlag returns the --seed value, or nil when the flag was not given.
func seedFlag(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("seed") {
		return nil
	}
	v, _ := cmd.Flags().GetUint64("seed")
	return &v
}

// loadPopulation reads a population file relative to --root.
func (e *env) loadPopulation(name string) (spiketrain.Population, error) {
	pop, err := recording.LoadPopulation(e.path(name))
	if err != nil {
		return spiketrain.Population{}, fmt.Errorf("failed to load population: %w", err)
	}
	e.logger.Debug("population loaded", "file", filepath.Base(name), "units", len(pop.Units), "duration", pop.Duration)
	return pop, nil
}

// writePopulation writes pop to out (relative to --root) or stdout when out
// is empty or "-".
func (e *env) writePopulation(cmd *cobra.Command, pop spiketrain.Population, out, format string) error {
	f := recording.Format(format)
	if out == "" || out == "-" {
		return recording.WritePopulation(cmd.OutOrStdout(), pop, f)
	}

	path := e.path(out)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := recording.WritePopulation(file, pop, f); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d units to %s\n", len(pop.Units), out)
	return nil
}

// signalContext is cancelled on interrupt so long computations stop.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nullable maps NaN and ±Inf to nil so they encode as JSON null.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullableSlice(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = nullable(v)
	}
	return out
}

// formatFloat renders NaN as "-" in tables.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openStore opens the results database: dbPath when given, else the
// configured store path.
func openStore(e *env, dbPath string) (*store.SQLiteRunStore, error) {
	path := e.path(dbPath)
	if path == "" {
		var err error
		if path, err = e.cfg.StorePath(); err != nil {
			return nil, err
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return s, nil
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
