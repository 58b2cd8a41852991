// Package config provides unified configuration loading for relaysim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/relaysim/internal/propagation"
	"gopkg.in/yaml.v3"
)

// RelaysimConfig contains all relaysim configuration settings.
type RelaysimConfig struct {
	// Solver contains settings for the energization fixed point.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Phases configures how phase sources are classified into identities.
	Phases PhasesConfig `json:"phases" yaml:"phases"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store contains settings for the schematic database.
	Store StoreConfig `json:"store" yaml:"store"`

	// Backup contains settings for store archives.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// SolverConfig bounds the fixed-point loop.
type SolverConfig struct {
	// MaxIterations is the number of rounds after which an oscillating
	// circuit is left in its last computed state.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}

// PhasesConfig lists the node suffixes that mark phase identities. The i-th
// suffix gets bit i of the phase mask.
type PhasesConfig struct {
	Suffixes []string `json:"suffixes" yaml:"suffixes"`
}

// LoggingConfig configures relaysim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables solver tracing to .relaysim/trace.jsonl.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig locates the schematic database.
type StoreConfig struct {
	// Path is the SQLite file. Empty means <root>/.relaysim/relaysim.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// BackupConfig configures backup retention.
type BackupConfig struct {
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig decides which archives survive a new backup. A backup is
// kept when any configured rule keeps it.
type RetentionConfig struct {
	// MaxCount keeps the N newest archives. 0 disables the rule.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps archives younger than this, e.g. "30d", "2w" or "72h".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// Default returns a RelaysimConfig with sensible defaults.
func Default() *RelaysimConfig {
	return &RelaysimConfig{
		Solver: SolverConfig{
			MaxIterations: propagation.DefaultMaxIterations,
		},
		Phases: PhasesConfig{
			Suffixes: append([]string(nil), propagation.DefaultSuffixes...),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.relaysim/config.yaml -> environment variables
func Load() (*RelaysimConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".relaysim", "config.yaml")
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

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*RelaysimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *RelaysimConfig) Validate() error {
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.Solver.MaxIterations)
	}

	if len(c.Phases.Suffixes) == 0 {
		return fmt.Errorf("phases.suffixes must not be empty")
	}
	if len(c.Phases.Suffixes) > propagation.MaxPhaseIdentities {
		return fmt.Errorf("phases.suffixes holds %d entries, at most %d supported",
			len(c.Phases.Suffixes), propagation.MaxPhaseIdentities)
	}
	seen := make(map[string]bool, len(c.Phases.Suffixes))
	for _, s := range c.Phases.Suffixes {
		if s == "" {
			return fmt.Errorf("phases.suffixes contains an empty suffix")
		}
		if seen[s] {
			return fmt.Errorf("phases.suffixes contains duplicate suffix %q", s)
		}
		seen[s] = true
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("backup.retention.max_count must not be negative, got %d", c.Backup.Retention.MaxCount)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Classifier returns the phase classifier described by the suffix list.
func (c *RelaysimConfig) Classifier() propagation.SuffixClassifier {
	return propagation.SuffixClassifier(append([]string(nil), c.Phases.Suffixes...))
}

// StorePath resolves the database location for a project root.
func (c *RelaysimConfig) StorePath(root string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(root, ".relaysim", "relaysim.db")
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *RelaysimConfig) {
	if v := os.Getenv("RELAYSIM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Solver.MaxIterations = n
		}
	}

	if v := os.Getenv("RELAYSIM_PHASE_SUFFIXES"); v != "" {
		var suffixes []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				suffixes = append(suffixes, s)
			}
		}
		config.Phases.Suffixes = suffixes
	}

	if v := os.Getenv("RELAYSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("RELAYSIM_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
