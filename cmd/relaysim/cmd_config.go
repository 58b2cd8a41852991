package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/relaysim/internal/backup"
	"github.com/nvandessel/relaysim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage relaysim configuration",
		Long: `View and modify relaysim configuration settings.

Configuration is stored in ~/.relaysim/config.yaml. Environment variables
(RELAYSIM_MAX_ITERATIONS, RELAYSIM_PHASE_SUFFIXES, RELAYSIM_LOG_LEVEL,
RELAYSIM_STORE_PATH) override the file.

Examples:
  relaysim config list
  relaysim config get solver.max_iterations
  relaysim config set phases.suffixes R,S,T`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
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

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			fmt.Fprintln(out, "Configuration (~/.relaysim/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-28s %v\n", key+":", value)
			}
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
				return fmt.Errorf("unknown configuration key: %s (valid: %s)", key, strings.Join(configKeys, ", "))
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
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

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
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

var configKeys = []string{
	"solver.max_iterations",
	"phases.suffixes",
	"logging.level",
	"store.path",
	"backup.retention.max_count",
	"backup.retention.max_age",
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.RelaysimConfig, key string) (any, bool) {
	switch key {
	case "solver.max_iterations":
		return cfg.Solver.MaxIterations, true
	case "phases.suffixes":
		return strings.Join(cfg.Phases.Suffixes, ","), true
	case "logging.level":
		return cfg.Logging.Level, true
	case "store.path":
		return valueOrDefault(cfg.Store.Path, "(default: <root>/.relaysim/relaysim.db)"), true
	case "backup.retention.max_count":
		return cfg.Backup.Retention.MaxCount, true
	case "backup.retention.max_age":
		return valueOrDefault(cfg.Backup.Retention.MaxAge, "(none)"), true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.RelaysimConfig, key, value string) error {
	switch key {
	case "solver.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_iterations: %s (must be an integer)", value)
		}
		cfg.Solver.MaxIterations = n
	case "phases.suffixes":
		var suffixes []string
		for _, s := range strings.Split(value, ",") {
			suffixes = append(suffixes, strings.TrimSpace(s))
		}
		cfg.Phases.Suffixes = suffixes
	case "logging.level":
		cfg.Logging.Level = value
	case "store.path":
		cfg.Store.Path = value
	case "backup.retention.max_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_count: %s (must be an integer)", value)
		}
		cfg.Backup.Retention.MaxCount = n
	case "backup.retention.max_age":
		if _, err := backup.ParseDuration(value); err != nil {
			return err
		}
		cfg.Backup.Retention.MaxAge = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// saveConfig writes the configuration to ~/.relaysim/config.yaml.
func saveConfig(cfg *config.RelaysimConfig) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".relaysim")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create .relaysim directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
