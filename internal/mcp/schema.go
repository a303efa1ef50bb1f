package mcp

import "github.com/nvandessel/tbc/internal/spiketrain"

// Float fields that can be NaN (undefined statistics) are reported as
// pointers and come back as null.

// DistanceInput defines the input for tbc_distance tool.
type DistanceInput struct {
	First    []float64 `json:"first" jsonschema:"spike times of the first train in seconds"`
	Second   []float64 `json:"second" jsonschema:"spike times of the second train in seconds"`
	Duration *float64  `json:"duration,omitempty" jsonschema:"trial duration in seconds; spikes after it are ignored"`
	Cost     *float64  `json:"cost,omitempty" jsonschema:"shift cost per second (0 compares counts only)"`
}

// DistanceOutput defines the output for tbc_distance tool.
type DistanceOutput struct {
	Distance float64 `json:"distance" jsonschema:"Victor-Purpura distance"`
	Duration float64 `json:"duration" jsonschema:"duration used"`
	Cost     *float64 `json:"cost" jsonschema:"cost used; null when infinite"`
}

// EstimateInput defines the input for tbc_estimate tool.
type EstimateInput struct {
	Rate     float64  `json:"rate" jsonschema:"firing rate in Hz"`
	Cost     float64  `json:"cost" jsonschema:"shift cost per second"`
	Mode     string   `json:"mode,omitempty" jsonschema:"per_spike or per_sec (default per_spike)"`
	Duration *float64 `json:"duration,omitempty" jsonschema:"trial duration in seconds for per_sec and zero cost"`
}

// EstimateOutput defines the output for tbc_estimate tool.
type EstimateOutput struct {
	Estimate float64 `json:"estimate" jsonschema:"expected SPKD between two Poisson trains"`
	Mode     string  `json:"mode" jsonschema:"normalization used"`
}

// NullStatsInput defines the input for tbc_null_stats tool.
type NullStatsInput struct {
	Population    string   `json:"population" jsonschema:"population file (JSON or YAML) relative to the server root"`
	Duration      *float64 `json:"duration,omitempty" jsonschema:"trial duration; defaults to the file's duration"`
	Cost          *float64 `json:"cost,omitempty" jsonschema:"shift cost per second"`
	Shuffle       bool     `json:"shuffle,omitempty" jsonschema:"circularly shuffle every trial before comparing"`
	Seed          *uint64  `json:"seed,omitempty" jsonschema:"seed for the shuffle; omit for a fresh random shuffle"`
	KeepDistances bool     `json:"keep_distances,omitempty" jsonschema:"include every pairwise distance"`
}

// UnitStats is one unit's row in tbc_null_stats output.
type UnitStats struct {
	ID         string    `json:"id,omitempty"`
	Location   string    `json:"location,omitempty"`
	Mean       *float64  `json:"mean"`
	Std        *float64  `json:"std"`
	FiringRate *float64  `json:"firing_rate"`
	Fano       *float64  `json:"fano"`
	Pairs      int       `json:"pairs"`
	Distances  []float64 `json:"distances,omitempty"`
}

// NullStatsOutput defines the output for tbc_null_stats tool.
type NullStatsOutput struct {
	Units    []UnitStats `json:"units" jsonschema:"per-unit random-pair statistics"`
	Duration float64     `json:"duration" jsonschema:"duration used"`
	Cost     *float64    `json:"cost" jsonschema:"cost used; null when infinite"`
	Shuffled bool        `json:"shuffled"`
}

// FanoInput defines the input for tbc_fano tool.
type FanoInput struct {
	Population string   `json:"population" jsonschema:"population file relative to the server root"`
	Duration   *float64 `json:"duration,omitempty" jsonschema:"counting window; defaults to the file's duration"`
}

// FanoUnit is one unit's row in tbc_fano output.
type FanoUnit struct {
	ID         string   `json:"id,omitempty"`
	Fano       *float64 `json:"fano"`
	FiringRate *float64 `json:"firing_rate"`
}

// FanoOutput defines the output for tbc_fano tool.
type FanoOutput struct {
	Units []FanoUnit `json:"units"`
}

// PoissonInput defines the input for tbc_poisson tool.
type PoissonInput struct {
	Rate     float64 `json:"rate" jsonschema:"firing rate in Hz"`
	Duration float64 `json:"duration" jsonschema:"trial duration in seconds"`
	Trials   int     `json:"trials" jsonschema:"trials per unit"`
	Units    int     `json:"units,omitempty" jsonschema:"number of units (default 1)"`
	Seed     *uint64 `json:"seed,omitempty" jsonschema:"random seed; omit for non-deterministic output"`
	Output   string  `json:"output,omitempty" jsonschema:"write the population to this file under the root instead of returning it"`
}

// PoissonOutput defines the output for tbc_poisson tool.
type PoissonOutput struct {
	Population *spiketrain.Population `json:"population,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Spikes     int                    `json:"spikes" jsonschema:"total spikes generated"`
}
