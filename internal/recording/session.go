package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"gopkg.in/yaml.v3"
)

// SessionUnit is one row of an exported units table.
type SessionUnit struct {
	SpikeTimes    spiketrain.Train `json:"spike_times" yaml:"spike_times"`
	PeakChannelID int64            `json:"peak_channel_id" yaml:"peak_channel_id"`
}

// Electrode is one row of an exported electrodes table.
type Electrode struct {
	ID       int64  `json:"id" yaml:"id"`
	Location string `json:"location" yaml:"location"`
}

// Session is a JSON or YAML export of the units and electrodes tables of a
// recording, plus the stimulus onsets to align against.
type Session struct {
	Units          []SessionUnit `json:"units" yaml:"units"`
	Electrodes     []Electrode   `json:"electrodes" yaml:"electrodes"`
	StimulusOnsets []float64     `json:"stimulus_onsets,omitempty" yaml:"stimulus_onsets,omitempty"`
}

var _ Recording = (*Session)(nil)

// UnitSpikeTimes implements Recording.
func (s *Session) UnitSpikeTimes() ([]spiketrain.Train, error) {
	out := make([]spiketrain.Train, len(s.Units))
	for i, u := range s.Units {
		out[i] = u.SpikeTimes
	}
	return out, nil
}

// UnitLocations implements Recording by looking up each unit's peak channel
// in the electrodes table.
func (s *Session) UnitLocations() ([]string, error) {
	byID := make(map[int64]string, len(s.Electrodes))
	for _, e := range s.Electrodes {
		byID[e.ID] = e.Location
	}

	out := make([]string, len(s.Units))
	for i, u := range s.Units {
		loc, ok := byID[u.PeakChannelID]
		if !ok {
			return nil, fmt.Errorf("unit %d: %w (channel %d)", i, ErrUnknownChannel, u.PeakChannelID)
		}
		out[i] = loc
	}
	return out, nil
}

// LoadSession reads a session export. The format is chosen by extension.
func LoadSession(path string) (*Session, error) {
	var s Session
	if err := decodeFile(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}
