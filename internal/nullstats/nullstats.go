// Package nullstats rolls pairwise spike-train distances up into per-unit
// and per-population null-distribution summaries.
package nullstats

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/nvandessel/tbc/internal/spkd"
	"gonum.org/v1/gonum/stat"
)

// UnitSummary describes the random-pair distance distribution of one unit.
type UnitSummary struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	FiringRate float64 `json:"firing_rate"`
	Pairs      int     `json:"pairs"`

	// Distances is only populated when requested. It is index-aligned
	// with spkd.Pairs over the unit's trials.
	Distances []float64 `json:"distances,omitempty"`
}

// PopulationSummary holds one entry per unit, index-aligned with the input.
type PopulationSummary struct {
	UnitIDs     []string    `json:"unit_ids"`
	Means       []float64   `json:"means"`
	Stds        []float64   `json:"stds"`
	FiringRates []float64   `json:"firing_rates"`
	Pairs       []int       `json:"pairs"`
	Distances   [][]float64 `json:"distances,omitempty"`
}

// Len returns the number of units summarized.
func (p PopulationSummary) Len() int {
	return len(p.Means)
}

// Unit returns the i-th unit's summary.
func (p PopulationSummary) Unit(i int) UnitSummary {
	u := UnitSummary{
		Mean:       p.Means[i],
		Std:        p.Stds[i],
		FiringRate: p.FiringRates[i],
		Pairs:      p.Pairs[i],
	}
	if p.Distances != nil {
		u.Distances = p.Distances[i]
	}
	return u
}

// Aggregator computes null statistics on top of a distance engine.
type Aggregator struct {
	engine *spkd.Engine
}

// NewAggregator creates an aggregator. A nil engine gets a default one.
func NewAggregator(engine *spkd.Engine) *Aggregator {
	if engine == nil {
		engine = spkd.NewEngine(0, nil)
	}
	return &Aggregator{engine: engine}
}

// Engine returns the underlying distance engine.
func (a *Aggregator) Engine() *spkd.Engine {
	return a.engine
}

// FiringRate returns the mean truncated spike count across trials divided
// by duration, in Hz. A unit without trials yields NaN.
func FiringRate(unit spiketrain.Unit, duration float64) float64 {
	if len(unit.Trials) == 0 {
		return math.NaN()
	}
	return stat.Mean(unit.SpikeCounts(duration), nil) / duration
}

// FanoFactor returns the sample variance (N-1) of the truncated per-trial
// spike counts divided by their mean. It returns NaN when the mean count is
// zero or there are fewer than two trials.
func FanoFactor(unit spiketrain.Unit, duration float64) float64 {
	if len(unit.Trials) < 2 {
		return math.NaN()
	}
	counts := unit.SpikeCounts(duration)
	mean, variance := stat.MeanVariance(counts, nil)
	if mean <= 0 {
		return math.NaN()
	}
	return variance / mean
}

// FanoFactors returns FanoFactor for every unit, in order.
func FanoFactors(units []spiketrain.Unit, duration float64) []float64 {
	out := make([]float64, len(units))
	for i, u := range units {
		out[i] = FanoFactor(u, duration)
	}
	return out
}

// RandomPairStatistics computes the distance between every unordered pair
// of the unit's trials and summarizes them. Std is the population standard
// deviation (N divisor). A unit with fewer than two trials has NaN mean and
// std.
func (a *Aggregator) RandomPairStatistics(ctx context.Context, unit spiketrain.Unit, duration, cost float64, keepDistances bool) (UnitSummary, error) {
	_, dists, err := a.engine.PairDistances(ctx, unit, duration, cost)
	if err != nil {
		return UnitSummary{}, err
	}

	summary := UnitSummary{
		Mean:       math.NaN(),
		Std:        math.NaN(),
		FiringRate: FiringRate(unit, duration),
		Pairs:      len(dists),
	}
	if len(dists) > 0 {
		summary.Mean = stat.Mean(dists, nil)
		summary.Std = stat.PopStdDev(dists, nil)
	}
	if keepDistances {
		summary.Distances = dists
	}
	return summary, nil
}

// PopulationStatistics applies RandomPairStatistics to every unit in order.
// The first failing unit aborts the call.
func (a *Aggregator) PopulationStatistics(ctx context.Context, units []spiketrain.Unit, duration, cost float64, keepDistances bool) (PopulationSummary, error) {
	out := PopulationSummary{
		UnitIDs:     make([]string, len(units)),
		Means:       make([]float64, len(units)),
		Stds:        make([]float64, len(units)),
		FiringRates: make([]float64, len(units)),
		Pairs:       make([]int, len(units)),
	}
	if keepDistances {
		out.Distances = make([][]float64, len(units))
	}

	for i, u := range units {
		s, err := a.RandomPairStatistics(ctx, u, duration, cost, keepDistances)
		if err != nil {
			return PopulationSummary{}, fmt.Errorf("unit %d (%s): %w", i, u.ID, err)
		}
		out.UnitIDs[i] = u.ID
		out.Means[i] = s.Mean
		out.Stds[i] = s.Std
		out.FiringRates[i] = s.FiringRate
		out.Pairs[i] = s.Pairs
		if keepDistances {
			out.Distances[i] = s.Distances
		}
	}
	return out, nil
}
