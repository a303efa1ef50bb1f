package mcp

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tbc/internal/estimate"
	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/pathutil"
	"github.com/nvandessel/tbc/internal/poisson"
	"github.com/nvandessel/tbc/internal/ratelimit"
	"github.com/nvandessel/tbc/internal/recording"
	"github.com/nvandessel/tbc/internal/sanitize"
	"github.com/nvandessel/tbc/internal/shuffle"
	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/nvandessel/tbc/internal/spkd"
)

// registerTools registers all tbc MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tbc_distance",
		Description: "Victor-Purpura spike-train distance between two spike trains",
	}, s.handleDistance)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tbc_estimate",
		Description: "Analytic estimate of the expected distance between two Poisson spike trains with a given firing rate",
	}, s.handleEstimate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tbc_null_stats",
		Description: "Mean, standard deviation and firing rate of all trial-pair distances for every unit in a population file",
	}, s.handleNullStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tbc_fano",
		Description: "Fano factor of spike counts across trials for every unit in a population file",
	}, s.handleFano)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tbc_poisson",
		Description: "Generate a population of homogeneous Poisson spike trains",
	}, s.handlePoisson)
}

func (s *Server) handleDistance(ctx context.Context, req *sdk.CallToolRequest, args DistanceInput) (_ *sdk.CallToolResult, _ DistanceOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tbc_distance", start, retErr, sanitizeToolParams(map[string]any{
			"first": len(args.First), "second": len(args.Second), "duration": args.Duration, "cost": args.Cost,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tbc_distance"); err != nil {
		return nil, DistanceOutput{}, err
	}

	duration, cost := s.resolve(args.Duration, args.Cost, 0)
	if err := validateComputeArgs(duration, cost); err != nil {
		return nil, DistanceOutput{}, err
	}

	d := spkd.Distance(spiketrain.Train(args.First).Sorted(), spiketrain.Train(args.Second).Sorted(), duration, cost)
	return nil, DistanceOutput{Distance: d, Duration: duration, Cost: finite(cost)}, nil
}

func (s *Server) handleEstimate(ctx context.Context, req *sdk.CallToolRequest, args EstimateInput) (_ *sdk.CallToolResult, _ EstimateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tbc_estimate", start, retErr, sanitizeToolParams(map[string]any{
			"rate": args.Rate, "cost": args.Cost, "mode": args.Mode, "duration": args.Duration,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tbc_estimate"); err != nil {
		return nil, EstimateOutput{}, err
	}

	modeName := args.Mode
	if modeName == "" {
		modeName = string(estimate.PerSpike)
	}
	mode, err := estimate.ParseMode(modeName)
	if err != nil {
		return nil, EstimateOutput{}, err
	}

	duration := s.defaults.Duration
	if args.Duration != nil {
		duration = *args.Duration
	}

	v, err := s.estimator.Estimate(args.Rate, args.Cost, mode, duration)
	if err != nil {
		return nil, EstimateOutput{}, err
	}
	return nil, EstimateOutput{Estimate: v, Mode: string(mode)}, nil
}

func (s *Server) handleNullStats(ctx context.Context, req *sdk.CallToolRequest, args NullStatsInput) (_ *sdk.CallToolResult, _ NullStatsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tbc_null_stats", start, retErr, sanitizeToolParams(map[string]any{
			"population": args.Population, "duration": args.Duration, "cost": args.Cost,
			"shuffle": args.Shuffle, "seed": args.Seed, "keep_distances": args.KeepDistances,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tbc_null_stats"); err != nil {
		return nil, NullStatsOutput{}, err
	}

	pop, err := s.loadPopulation(args.Population)
	if err != nil {
		return nil, NullStatsOutput{}, err
	}

	if args.Shuffle {
		pop, err = shuffle.Population(pop, args.Seed)
		if err != nil {
			return nil, NullStatsOutput{}, fmt.Errorf("shuffle: %w", err)
		}
	}

	duration, cost := s.resolve(args.Duration, args.Cost, pop.Duration)
	if err := validateComputeArgs(duration, cost); err != nil {
		return nil, NullStatsOutput{}, err
	}

	summary, err := s.aggregator.PopulationStatistics(ctx, pop.Units, duration, cost, args.KeepDistances)
	if err != nil {
		return nil, NullStatsOutput{}, err
	}
	fano := nullstats.FanoFactors(pop.Units, duration)

	out := NullStatsOutput{
		Units:    make([]UnitStats, summary.Len()),
		Duration: duration,
		Cost:     finite(cost),
		Shuffled: args.Shuffle,
	}
	for i := range out.Units {
		u := summary.Unit(i)
		out.Units[i] = UnitStats{
			ID:         sanitize.Label(pop.Units[i].ID),
			Location:   sanitize.Label(pop.Units[i].Location),
			Mean:       finite(u.Mean),
			Std:        finite(u.Std),
			FiringRate: finite(u.FiringRate),
			Fano:       finite(fano[i]),
			Pairs:      u.Pairs,
			Distances:  u.Distances,
		}
	}

	s.logger.Debug("null stats computed", "units", len(out.Units), "duration", duration, "cost", cost, "elapsed", time.Since(start))
	return nil, out, nil
}

func (s *Server) handleFano(ctx context.Context, req *sdk.CallToolRequest, args FanoInput) (_ *sdk.CallToolResult, _ FanoOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tbc_fano", start, retErr, sanitizeToolParams(map[string]any{
			"population": args.Population, "duration": args.Duration,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tbc_fano"); err != nil {
		return nil, FanoOutput{}, err
	}

	pop, err := s.loadPopulation(args.Population)
	if err != nil {
		return nil, FanoOutput{}, err
	}

	duration, _ := s.resolve(args.Duration, nil, pop.Duration)
	if err := spkd.ValidateDuration(duration); err != nil {
		return nil, FanoOutput{}, err
	}

	fano := nullstats.FanoFactors(pop.Units, duration)
	out := FanoOutput{Units: make([]FanoUnit, len(pop.Units))}
	for i, u := range pop.Units {
		out.Units[i] = FanoUnit{
			ID:         sanitize.Label(u.ID),
			Fano:       finite(fano[i]),
			FiringRate: finite(nullstats.FiringRate(u, duration)),
		}
	}
	return nil, out, nil
}

func (s *Server) handlePoisson(ctx context.Context, req *sdk.CallToolRequest, args PoissonInput) (_ *sdk.CallToolResult, _ PoissonOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tbc_poisson", start, retErr, sanitizeToolParams(map[string]any{
			"rate": args.Rate, "duration": args.Duration, "trials": args.Trials,
			"units": args.Units, "seed": args.Seed, "output": args.Output,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tbc_poisson"); err != nil {
		return nil, PoissonOutput{}, err
	}

	units := args.Units
	if units <= 0 {
		units = 1
	}
	pop, err := poisson.GeneratePopulation(args.Rate, args.Duration, args.Trials, units, args.Seed)
	if err != nil {
		return nil, PoissonOutput{}, err
	}

	spikes := 0
	for _, u := range pop.Units {
		for _, tr := range u.Trials {
			spikes += len(tr)
		}
	}

	if args.Output == "" {
		return nil, PoissonOutput{Population: &pop, Spikes: spikes}, nil
	}

	path, err := pathutil.ResolveInRoot(s.root, args.Output)
	if err != nil {
		return nil, PoissonOutput{}, err
	}
	if err := writePopulationFile(path, pop); err != nil {
		return nil, PoissonOutput{}, err
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return nil, PoissonOutput{Path: rel, Spikes: spikes}, nil
}

// loadPopulation resolves name inside the server root and reads it.
func (s *Server) loadPopulation(name string) (spiketrain.Population, error) {
	if name == "" {
		return spiketrain.Population{}, fmt.Errorf("'population' parameter is required")
	}
	path, err := pathutil.ResolveInRoot(s.root, name)
	if err != nil {
		return spiketrain.Population{}, err
	}
	pop, err := recording.LoadPopulation(path)
	if err != nil {
		return spiketrain.Population{}, fmt.Errorf("loading %s: %w", pathutil.RedactPath(path), err)
	}
	return pop, nil
}

// resolve fills omitted arguments: duration from the file (when positive)
// and then from config, cost from config.
func (s *Server) resolve(duration, cost *float64, fileDuration float64) (float64, float64) {
	d := s.defaults.Duration
	if fileDuration > 0 {
		d = fileDuration
	}
	if duration != nil {
		d = *duration
	}
	c := s.defaults.Cost
	if cost != nil {
		c = *cost
	}
	return d, c
}

func validateComputeArgs(duration, cost float64) error {
	if err := spkd.ValidateDuration(duration); err != nil {
		return err
	}
	return spkd.ValidateCost(cost)
}

func writePopulationFile(path string, pop spiketrain.Population) error {
	format := recording.FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = recording.FormatYAML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", pathutil.RedactPath(path), err)
	}
	if err := recording.WritePopulation(f, pop, format); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", pathutil.RedactPath(path), err)
	}
	return f.Close()
}

// finite returns nil for NaN and ±Inf so the value encodes as JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
