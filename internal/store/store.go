// Package store persists null-statistics runs so they can be listed,
// inspected and compared later.
package store

import (
	"errors"
	"time"

	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/spkd"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunKind describes where the spike trains of a run came from.
type RunKind string

const (
	KindObserved RunKind = "observed" // recorded trains as loaded
	KindShuffled RunKind = "shuffled" // circularly shuffled trains
	KindPoisson  RunKind = "poisson"  // synthetic Poisson trains
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	switch k {
	case KindObserved, KindShuffled, KindPoisson:
		return true
	}
	return false
}

// Run is the metadata of one PopulationStatistics invocation.
type Run struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      RunKind   `json:"kind"`
	Source    string    `json:"source,omitempty"` // input file, if any
	Duration  float64   `json:"duration"`
	Cost      float64   `json:"cost"`
	Workers   int       `json:"workers"`
	Seed      *uint64   `json:"seed,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// UnitStat is one row of per-unit results. NaN values round-trip through
// NULL columns.
type UnitStat struct {
	UnitIndex  int     `json:"unit_index"`
	UnitID     string  `json:"unit_id"`
	Location   string  `json:"location,omitempty"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	FiringRate float64 `json:"firing_rate"`
	Fano       float64 `json:"fano"`
	Pairs      int     `json:"pairs"`
}

// DistanceRecord is one pairwise distance of a stored run.
type DistanceRecord struct {
	UnitIndex int     `json:"unit_index"`
	PairIndex int     `json:"pair_index"`
	TrialI    int     `json:"trial_i"`
	TrialJ    int     `json:"trial_j"`
	Distance  float64 `json:"distance"`
}

// RunDetail is a run together with its unit statistics.
type RunDetail struct {
	Run   Run        `json:"run"`
	Units []UnitStat `json:"units"`
}

// UnitStats flattens a population summary into rows. locations and fano
// may be nil or shorter than the summary; missing entries are left empty.
func UnitStats(summary nullstats.PopulationSummary, locations []string, fano []float64) []UnitStat {
	out := make([]UnitStat, summary.Len())
	for i := range out {
		u := summary.Unit(i)
		out[i] = UnitStat{
			UnitIndex:  i,
			UnitID:     summary.UnitIDs[i],
			Mean:       u.Mean,
			Std:        u.Std,
			FiringRate: u.FiringRate,
			Pairs:      u.Pairs,
		}
		if i < len(locations) {
			out[i].Location = locations[i]
		}
		if i < len(fano) {
			out[i].Fano = fano[i]
		}
	}
	return out
}

// DistanceRecords flattens the raw distances kept in a summary. It returns
// nil when the summary was computed without keeping distances.
func DistanceRecords(summary nullstats.PopulationSummary) []DistanceRecord {
	if summary.Distances == nil {
		return nil
	}
	var out []DistanceRecord
	for u, dists := range summary.Distances {
		idx := spkd.PairIndices(spkd.TrialsForPairs(len(dists)))
		for p, d := range dists {
			rec := DistanceRecord{UnitIndex: u, PairIndex: p, Distance: d}
			if p < len(idx) {
				rec.TrialI, rec.TrialJ = idx[p][0], idx[p][1]
			}
			out = append(out, rec)
		}
	}
	return out
}
