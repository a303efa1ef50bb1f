// Package spiketrain defines the spike-train data model shared by the
// distance, shuffle and generator packages.
//
// A Train is an ordered list of spike timestamps in seconds. Library code
// never mutates a Train it was given; every derived train is a new slice.
package spiketrain

import (
	"slices"
)

// Train is a sequence of non-negative spike timestamps in seconds.
type Train []float64

// Truncate returns the spikes with timestamp <= d, in input order.
// The boundary is inclusive.
func (t Train) Truncate(d float64) Train {
	out := make(Train, 0, len(t))
	for _, s := range t {
		if s <= d {
			out = append(out, s)
		}
	}
	return out
}

// CountUntil returns the number of spikes with timestamp <= d.
func (t Train) CountUntil(d float64) int {
	n := 0
	for _, s := range t {
		if s <= d {
			n++
		}
	}
	return n
}

// Sorted returns an ascending copy of the train.
func (t Train) Sorted() Train {
	out := slices.Clone(t)
	if out == nil {
		out = Train{}
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy of the train.
func (t Train) Clone() Train {
	out := make(Train, len(t))
	copy(out, t)
	return out
}

// Unit is one recorded neuron: a train per trial, all compared over the
// same duration.
type Unit struct {
	ID       string  `json:"id,omitempty" yaml:"id,omitempty"`
	Location string  `json:"location,omitempty" yaml:"location,omitempty"`
	Trials   []Train `json:"trials" yaml:"trials"`
}

// SpikeCounts returns the per-trial spike counts truncated to d.
func (u Unit) SpikeCounts(d float64) []float64 {
	counts := make([]float64, len(u.Trials))
	for i, tr := range u.Trials {
		counts[i] = float64(tr.CountUntil(d))
	}
	return counts
}

// Population is an ordered collection of units sharing a trial duration.
type Population struct {
	Duration float64 `json:"duration" yaml:"duration"`
	Units    []Unit  `json:"units" yaml:"units"`
}

// TrialCount returns the total number of trials across all units.
func (p Population) TrialCount() int {
	n := 0
	for _, u := range p.Units {
		n += len(u.Trials)
	}
	return n
}
