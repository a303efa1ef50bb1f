// Package poisson generates synthetic homogeneous Poisson spike trains with
// a fixed-resolution, bin-based sampler.
//
// Every bin of width Resolution draws a Poisson count with mean rate*dt and
// records one spike at the bin start when the count is non-zero. Bins with
// more than one event still record a single spike; null-distribution fits
// downstream were calibrated against this approximation.
package poisson

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"gonum.org/v1/gonum/stat/distuv"
)

// Resolution is the bin width in seconds.
const Resolution = 1e-4

const streamSalt = 0x2545f4914f6cdd1d

var (
	// ErrInvalidRate is returned for a negative or non-finite firing rate.
	ErrInvalidRate = errors.New("firing rate must be a non-negative finite number")

	// ErrInvalidDuration is returned for a non-positive or non-finite duration.
	ErrInvalidDuration = errors.New("duration must be positive and finite")

	// ErrInvalidTrials is returned for a negative trial count.
	ErrInvalidTrials = errors.New("trial count must be non-negative")
)

type options struct {
	src rand.Source
}

// Option configures Generate.
type Option func(*options)

// WithSeed makes the output reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.src = rand.NewPCG(seed, seed^streamSalt)
	}
}

// WithSource draws from the caller's random source.
func WithSource(src rand.Source) Option {
	return func(o *options) {
		o.src = src
	}
}

func validate(rate, duration float64, trials int) error {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidRate, rate)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidDuration, duration)
	}
	if trials < 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidTrials, trials)
	}
	return nil
}

// Generate returns trials independent spike trains at rate Hz over
// duration seconds. Without WithSeed or WithSource the output is
// non-deterministic.
func Generate(rate, duration float64, trials int, opts ...Option) ([]spiketrain.Train, error) {
	if err := validate(rate, duration, trials); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		o.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	nbins := int(duration / Resolution)
	out := make([]spiketrain.Train, trials)

	if rate == 0 {
		for i := range out {
			out[i] = spiketrain.Train{}
		}
		return out, nil
	}

	dist := distuv.Poisson{Lambda: rate * Resolution, Src: o.src}
	for i := range out {
		tr := spiketrain.Train{}
		for bin := 0; bin < nbins; bin++ {
			if dist.Rand() > 0 {
				tr = append(tr, float64(bin)*Resolution)
			}
		}
		out[i] = tr
	}
	return out, nil
}

// GenerateUnit wraps Generate into a Unit with the given id.
func GenerateUnit(id string, rate, duration float64, trials int, opts ...Option) (spiketrain.Unit, error) {
	tr, err := Generate(rate, duration, trials, opts...)
	if err != nil {
		return spiketrain.Unit{}, err
	}
	return spiketrain.Unit{ID: id, Trials: tr}, nil
}

// GeneratePopulation builds units synthetic units sharing rate, duration
// and trial count. Unit i draws from its own stream derived from seed; a
// nil seed is drawn from the runtime source.
func GeneratePopulation(rate, duration float64, trials, units int, seed *uint64) (spiketrain.Population, error) {
	if units < 0 {
		return spiketrain.Population{}, fmt.Errorf("unit count must be non-negative, got %d", units)
	}
	base := rand.Uint64()
	if seed != nil {
		base = *seed
	}
	pop := spiketrain.Population{Duration: duration, Units: make([]spiketrain.Unit, units)}
	for i := range pop.Units {
		src := rand.NewPCG(base, uint64(i)+streamSalt)
		u, err := GenerateUnit(fmt.Sprintf("poisson-%d", i), rate, duration, trials, WithSource(src))
		if err != nil {
			return spiketrain.Population{}, err
		}
		pop.Units[i] = u
	}
	return pop, nil
}
