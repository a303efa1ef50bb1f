// Package spkd computes the Victor–Purpura spike-train distance and
// evaluates it over many train pairs in parallel.
package spkd

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/tbc/internal/spiketrain"
)

var (
	// ErrInvalidCost is returned for a negative or NaN shift cost.
	ErrInvalidCost = errors.New("cost must be a non-negative number")

	// ErrInvalidDuration is returned for a non-positive or NaN duration.
	ErrInvalidDuration = errors.New("duration must be positive")
)

// ValidateCost checks that cost is usable by Distance. +Inf is allowed.
func ValidateCost(cost float64) error {
	if math.IsNaN(cost) || cost < 0 {
		return fmt.Errorf("%w, got %v", ErrInvalidCost, cost)
	}
	return nil
}

// ValidateDuration checks that d is a positive, finite-or-infinite number.
func ValidateDuration(d float64) error {
	if math.IsNaN(d) || d <= 0 {
		return fmt.Errorf("%w, got %v", ErrInvalidDuration, d)
	}
	return nil
}

// Distance returns the Victor–Purpura distance between a and b after
// discarding spikes later than duration.
//
// Inserting or deleting a spike costs 1; moving a spike by dt costs
// cost*|dt|. A zero cost reduces to the spike-count difference and an
// infinite cost to the total spike count.
func Distance(a, b spiketrain.Train, duration, cost float64) float64 {
	ti := a.Truncate(duration)
	tj := b.Truncate(duration)
	n, m := len(ti), len(tj)

	switch {
	case cost == 0:
		return math.Abs(float64(n - m))
	case math.IsInf(cost, 1):
		return float64(n + m)
	}

	// Two rows of the (n+1)x(m+1) table: prev holds row i-1, cur row i.
	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = float64(j)
	}

	for i := 1; i <= n; i++ {
		cur[0] = float64(i)
		for j := 1; j <= m; j++ {
			del := prev[j] + 1
			ins := cur[j-1] + 1
			shift := prev[j-1] + cost*math.Abs(ti[i-1]-tj[j-1])
			cur[j] = min(del, ins, shift)
		}
		prev, cur = cur, prev
	}

	return prev[m]
}
