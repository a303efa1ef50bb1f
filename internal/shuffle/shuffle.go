// Package shuffle builds surrogate spike trains by circularly shifting every
// spike by an independent uniform offset. Spike counts are preserved while
// temporal structure is destroyed.
package shuffle

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidDuration is returned for a non-positive or non-finite total duration.
	ErrInvalidDuration = errors.New("total duration must be positive and finite")

	// ErrNilRand is returned when no generator is supplied.
	ErrNilRand = errors.New("shuffle requires a random generator")
)

// streamSalt decorrelates the second PCG word from the seed.
const streamSalt = 0x9e3779b97f4a7c15

// NewRand returns a PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^streamSalt))
}

// UnitRand returns the generator for the unit at index i of a population
// shuffled with seed. Each unit gets its own stream so results do not
// depend on the order units are processed in.
func UnitRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)+streamSalt))
}

func validate(totalDuration float64) error {
	if totalDuration <= 0 || math.IsNaN(totalDuration) || math.IsInf(totalDuration, 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidDuration, totalDuration)
	}
	return nil
}

// Train returns a new train where each spike is shifted by an offset drawn
// uniformly from [0, totalDuration) and wrapped modulo totalDuration. The
// result is sorted ascending. An empty train yields an empty train.
func Train(t spiketrain.Train, totalDuration float64, rng *rand.Rand) (spiketrain.Train, error) {
	if err := validate(totalDuration); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, ErrNilRand
	}
	if len(t) == 0 {
		return spiketrain.Train{}, nil
	}

	offset := distuv.Uniform{Min: 0, Max: totalDuration, Src: rng}
	out := make(spiketrain.Train, len(t))
	for i, s := range t {
		out[i] = math.Mod(s+offset.Rand(), totalDuration)
	}
	slices.Sort(out)
	return out, nil
}

// Unit shuffles every trial of u independently. ID and location are kept.
func Unit(u spiketrain.Unit, totalDuration float64, rng *rand.Rand) (spiketrain.Unit, error) {
	if rng == nil {
		return spiketrain.Unit{}, ErrNilRand
	}
	out := spiketrain.Unit{
		ID:       u.ID,
		Location: u.Location,
		Trials:   make([]spiketrain.Train, len(u.Trials)),
	}
	for i, tr := range u.Trials {
		shuffled, err := Train(tr, totalDuration, rng)
		if err != nil {
			return spiketrain.Unit{}, err
		}
		out.Trials[i] = shuffled
	}
	return out, nil
}

// Population shuffles every unit of p with a per-unit stream derived from
// seed. The population duration is used as the wrap-around window. A nil
// seed draws one from the runtime source, so the result is not reproducible.
func Population(p spiketrain.Population, seed *uint64) (spiketrain.Population, error) {
	base := rand.Uint64()
	if seed != nil {
		base = *seed
	}
	out := spiketrain.Population{
		Duration: p.Duration,
		Units:    make([]spiketrain.Unit, len(p.Units)),
	}
	for i, u := range p.Units {
		su, err := Unit(u, p.Duration, UnitRand(base, i))
		if err != nil {
			return spiketrain.Population{}, fmt.Errorf("unit %d: %w", i, err)
		}
		out.Units[i] = su
	}
	return out, nil
}
