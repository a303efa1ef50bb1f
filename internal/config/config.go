// Package config provides unified configuration loading for tbc.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirName is the per-user directory holding config, database and logs.
const DirName = ".tbc"

// TbcConfig contains all tbc configuration settings.
type TbcConfig struct {
	// Compute contains defaults for distance computation.
	Compute ComputeConfig `json:"compute" yaml:"compute"`

	// Estimator configures the analytic SPKD estimator.
	Estimator EstimatorConfig `json:"estimator" yaml:"estimator"`

	// Store configures the SQLite results store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and run logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ComputeConfig holds defaults used when a command does not override them.
type ComputeConfig struct {
	// Workers caps concurrent pair computations. 0 uses all CPUs.
	Workers int `json:"workers" yaml:"workers"`

	// Cost is the default Victor–Purpura shift cost (per second).
	Cost float64 `json:"cost" yaml:"cost"`

	// Duration is the default trial duration in seconds.
	Duration float64 `json:"duration" yaml:"duration"`
}

// EstimatorConfig configures the analytic estimator.
type EstimatorConfig struct {
	// ShapeParamsPath points to the fitted gamma/delta coefficients
	// (.json, .yaml or .toml). Supports ${VAR} expansion.
	ShapeParamsPath string `json:"shape_params_path,omitempty" yaml:"shape_params_path,omitempty"`
}

// StoreConfig configures where computed runs are persisted.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means ~/.tbc/tbc.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures tbc's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run logging to ~/.tbc/runs.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a TbcConfig with sensible defaults.
func Default() *TbcConfig {
	return &TbcConfig{
		Compute: ComputeConfig{
			Workers:  0,
			Cost:     1.0,
			Duration: 1.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.tbc.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// Path returns ~/.tbc/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.tbc/config.yaml -> environment variables
func Load() (*TbcConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*TbcConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Estimator.ShapeParamsPath = expandEnvVars(config.Estimator.ShapeParamsPath)
	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Save writes the configuration to path as YAML, creating parent directories.
func (c *TbcConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// StorePath returns the configured database path or ~/.tbc/tbc.db.
func (c *TbcConfig) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tbc.db"), nil
}

// Validate checks that the configuration is valid.
func (c *TbcConfig) Validate() error {
	if c.Compute.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Compute.Workers)
	}

	if c.Compute.Cost < 0 || math.IsNaN(c.Compute.Cost) {
		return fmt.Errorf("cost must be non-negative, got %v", c.Compute.Cost)
	}

	if c.Compute.Duration <= 0 || math.IsNaN(c.Compute.Duration) || math.IsInf(c.Compute.Duration, 0) {
		return fmt.Errorf("duration must be positive, got %v", c.Compute.Duration)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *TbcConfig) {
	if v := os.Getenv("TBC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Compute.Workers = n
		}
	}

	if v := os.Getenv("TBC_COST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Compute.Cost = f
		}
	}

	if v := os.Getenv("TBC_DURATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Compute.Duration = f
		}
	}

	if v := os.Getenv("TBC_SHAPE_PARAMS"); v != "" {
		config.Estimator.ShapeParamsPath = v
	}

	if v := os.Getenv("TBC_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("TBC_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
