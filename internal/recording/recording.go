// Package recording is the boundary to recorded neurophysiology data.
//
// Reading NWB (HDF5) files is delegated to an external Opener; this package
// enforces the file-format contract, resolves unit locations from channel
// metadata and aligns continuous spike streams to stimulus onsets.
package recording

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/nvandessel/tbc/internal/spiketrain"
)

// NWBExtension is the file extension required by Open.
const NWBExtension = ".nwb"

var (
	// ErrNotNWB is returned for a path without the .nwb extension.
	ErrNotNWB = errors.New("provide an NWB file to be read")

	// ErrUnknownChannel is returned when a unit's peak channel has no
	// electrode entry.
	ErrUnknownChannel = errors.New("peak channel has no electrode entry")
)

// Recording exposes the per-unit tables of a loaded recording.
type Recording interface {
	// UnitSpikeTimes returns the continuous spike times of every unit.
	UnitSpikeTimes() ([]spiketrain.Train, error)
	// UnitLocations returns the anatomical label of every unit, aligned
	// with UnitSpikeTimes.
	UnitLocations() ([]string, error)
}

// Opener loads a recording from disk.
type Opener interface {
	Open(path string) (Recording, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Recording, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (Recording, error) { return f(path) }

// CheckPath verifies that path names an NWB file. The extension match is
// case-sensitive.
func CheckPath(path string) error {
	if filepath.Ext(path) != NWBExtension {
		return fmt.Errorf("%w: %s", ErrNotNWB, filepath.Base(path))
	}
	return nil
}

// Open validates the extension and then delegates to opener. The file is not
// touched when the extension check fails.
func Open(path string, opener Opener) (Recording, error) {
	if err := CheckPath(path); err != nil {
		return nil, err
	}
	rec, err := opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	return rec, nil
}

// Align cuts one trial per onset out of a unit's continuous spike stream:
// spikes in [onset, onset+duration), shifted so each trial starts at zero.
// spikes must be sorted ascending.
func Align(spikes spiketrain.Train, onsets []float64, duration float64) []spiketrain.Train {
	trials := make([]spiketrain.Train, len(onsets))
	for i, onset := range onsets {
		lo := sort.SearchFloat64s(spikes, onset)
		hi := sort.SearchFloat64s(spikes, onset+duration)
		tr := make(spiketrain.Train, 0, hi-lo)
		for _, s := range spikes[lo:hi] {
			tr = append(tr, s-onset)
		}
		trials[i] = tr
	}
	return trials
}

// AlignRecording aligns every unit of rec to onsets and returns the
// resulting population. Units are named unit-<index>.
func AlignRecording(rec Recording, onsets []float64, duration float64) (spiketrain.Population, error) {
	spikes, err := rec.UnitSpikeTimes()
	if err != nil {
		return spiketrain.Population{}, fmt.Errorf("reading spike times: %w", err)
	}
	locations, err := rec.UnitLocations()
	if err != nil {
		return spiketrain.Population{}, fmt.Errorf("reading unit locations: %w", err)
	}
	if len(locations) != len(spikes) {
		return spiketrain.Population{}, fmt.Errorf("recording has %d units but %d locations", len(spikes), len(locations))
	}

	pop := spiketrain.Population{Duration: duration, Units: make([]spiketrain.Unit, len(spikes))}
	for i, st := range spikes {
		pop.Units[i] = spiketrain.Unit{
			ID:       fmt.Sprintf("unit-%d", i),
			Location: locations[i],
			Trials:   Align(st.Sorted(), onsets, duration),
		}
	}
	return pop, nil
}
