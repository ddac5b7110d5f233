// Package config provides unified configuration loading for unaflow.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/output"
	"github.com/unaflow/unaflow/internal/publish"
)

// UnaflowConfig contains all unaflow configuration settings.
type UnaflowConfig struct {
	// Cores caps the workers requested from the computation service.
	Cores int `json:"cores" yaml:"cores"`

	// Network contains settings for topology construction.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Output selects which artifacts are written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Publish mirrors finished runs into an object store.
	Publish publish.Config `json:"publish" yaml:"publish"`
}

// NetworkConfig configures topology construction.
type NetworkConfig struct {
	// SnappingTolerance merges line endpoints closer than this distance.
	SnappingTolerance float64 `json:"snapping_tolerance" yaml:"snapping_tolerance"`

	// DiscardRedundant drops parallel edges between the same node pair in
	// the flow workflow. The accessibility workflow always drops them.
	DiscardRedundant bool `json:"discard_redundant" yaml:"discard_redundant"`
}

// OutputConfig configures run artifacts.
type OutputConfig struct {
	output.SaveFlags `json:",inline" yaml:",inline"`

	// Ledger archives every telemetry event into run_ledger.db.
	Ledger bool `json:"ledger" yaml:"ledger"`
}

// LoggingConfig configures unaflow's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <output>/decisions.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns an UnaflowConfig with sensible defaults.
func Default() *UnaflowConfig {
	return &UnaflowConfig{
		Cores: constants.DefaultCores,
		Network: NetworkConfig{
			SnappingTolerance: constants.DefaultSnappingTolerance,
		},
		Output: OutputConfig{
			SaveFlags: output.DefaultSaveFlags(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Publish: publish.DefaultConfig(),
	}
}

// Path returns the default config file location, ~/.unaflow/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".unaflow", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.unaflow/config.yaml -> environment variables
func Load() (*UnaflowConfig, error) {
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

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*UnaflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in credentials
	config.Publish.AccessKey = expandEnvVars(config.Publish.AccessKey)
	config.Publish.SecretKey = expandEnvVars(config.Publish.SecretKey)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *UnaflowConfig) Validate() error {
	if c.Cores < 1 {
		return fmt.Errorf("cores must be at least 1, got %d", c.Cores)
	}
	if c.Network.SnappingTolerance < 0 {
		return fmt.Errorf("snapping_tolerance must be non-negative, got %v", c.Network.SnappingTolerance)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// YAML renders c with the publish secret redacted.
func (c *UnaflowConfig) YAML() ([]byte, error) {
	redacted := *c
	redacted.Publish.SecretKey = c.Publish.RedactedSecret()
	return yaml.Marshal(&redacted)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *UnaflowConfig) error {
	if v := os.Getenv("UNAFLOW_CORES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse UNAFLOW_CORES: %w", err)
		}
		config.Cores = n
	}

	if v := os.Getenv("UNAFLOW_SNAPPING_TOLERANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse UNAFLOW_SNAPPING_TOLERANCE: %w", err)
		}
		config.Network.SnappingTolerance = f
	}

	if v := os.Getenv("UNAFLOW_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("UNAFLOW_LEDGER"); v != "" {
		config.Output.Ledger = isTrue(v)
	}

	if v := os.Getenv("UNAFLOW_PUBLISH_ENABLED"); v != "" {
		config.Publish.Enabled = isTrue(v)
	}
	if v := os.Getenv("UNAFLOW_PUBLISH_ENDPOINT"); v != "" {
		config.Publish.Endpoint = v
	}
	if v := os.Getenv("UNAFLOW_PUBLISH_ACCESS_KEY"); v != "" {
		config.Publish.AccessKey = v
	}
	if v := os.Getenv("UNAFLOW_PUBLISH_SECRET_KEY"); v != "" {
		config.Publish.SecretKey = v
	}
	if v := os.Getenv("UNAFLOW_PUBLISH_BUCKET"); v != "" {
		config.Publish.Bucket = v
	}
	if v := os.Getenv("UNAFLOW_PUBLISH_USE_SSL"); v != "" {
		config.Publish.UseSSL = isTrue(v)
	}
	return nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
