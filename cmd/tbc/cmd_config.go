package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tbc configuration",
		Long: `View and modify tbc configuration settings.

Configuration is stored in ~/.tbc/config.yaml. TBC_* environment variables
override the file.

Examples:
  tbc config list                                 # Show all settings
  tbc config get compute.cost                     # Get a specific setting
  tbc config set compute.workers 8                # Set a setting
  tbc config set estimator.shape_params_path ~/shape.toml`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"compute.workers",
	"compute.cost",
	"compute.duration",
	"estimator.shape_params_path",
	"store.path",
	"logging.level",
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				out := make(map[string]any, len(configKeys))
				for _, key := range configKeys {
					v, _ := getConfigValue(cfg, key)
					out[key] = v
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Configuration (~/.tbc/config.yaml):")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Compute Settings:")
			fmt.Fprintf(w, "  compute.workers:   %d\n", cfg.Compute.Workers)
			fmt.Fprintf(w, "  compute.cost:      %g\n", cfg.Compute.Cost)
			fmt.Fprintf(w, "  compute.duration:  %g\n", cfg.Compute.Duration)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Estimator Settings:")
			fmt.Fprintf(w, "  estimator.shape_params_path:  %s\n", valueOrDefault(cfg.Estimator.ShapeParamsPath, "(not set)"))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Store Settings:")
			fmt.Fprintf(w, "  store.path:  %s\n", valueOrDefault(cfg.Store.Path, "(default)"))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Logging Settings:")
			fmt.Fprintf(w, "  logging.level:  %s\n", valueOrDefault(cfg.Logging.Level, "info"))
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := config.Path()
			if err != nil {
				return err
			}

			// Start from the file alone so env overrides are not persisted.
			cfg := config.Default()
			if existing, err := config.LoadFromFile(path); err == nil {
				cfg = existing
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.TbcConfig, key string) (any, bool) {
	switch key {
	case "compute.workers":
		return cfg.Compute.Workers, true
	case "compute.cost":
		return nullable(cfg.Compute.Cost), true
	case "compute.duration":
		return cfg.Compute.Duration, true
	case "estimator.shape_params_path":
		return cfg.Estimator.ShapeParamsPath, true
	case "store.path":
		return cfg.Store.Path, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.TbcConfig, key, value string) error {
	switch key {
	case "compute.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid worker count: %s", value)
		}
		cfg.Compute.Workers = n
	case "compute.cost":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid cost: %s (must be a number or inf)", value)
		}
		cfg.Compute.Cost = f
	case "compute.duration":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Compute.Duration = f
	case "estimator.shape_params_path":
		cfg.Estimator.ShapeParamsPath = value
	case "store.path":
		cfg.Store.Path = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
