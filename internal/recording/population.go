package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for a data file that is neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format names a population file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// LoadPopulation reads a population file ({"duration": .., "units": [..]}).
func LoadPopulation(path string) (spiketrain.Population, error) {
	var p spiketrain.Population
	if err := decodeFile(path, &p); err != nil {
		return spiketrain.Population{}, err
	}
	if err := ValidatePopulation(p); err != nil {
		return spiketrain.Population{}, err
	}
	return p, nil
}

// ValidatePopulation checks the duration and that spike times are finite
// and non-negative.
func ValidatePopulation(p spiketrain.Population) error {
	if p.Duration <= 0 || math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) {
		return fmt.Errorf("population duration must be positive, got %v", p.Duration)
	}
	for ui, u := range p.Units {
		for ti, tr := range u.Trials {
			for _, s := range tr {
				if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
					return fmt.Errorf("unit %d trial %d: invalid spike time %v", ui, ti, s)
				}
			}
		}
	}
	return nil
}

// WritePopulation encodes p to w.
func WritePopulation(w io.Writer, p spiketrain.Population, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(p)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
