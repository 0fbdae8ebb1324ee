package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tracecmd-collapse/internal/collapse"
)

// EnvMinLatency is the environment variable holding the threshold in
// microseconds.
const EnvMinLatency = "MIN_LATENCY_US"

// EnvLogLevel overrides the log level.
const EnvLogLevel = "TRACECMD_COLLAPSE_LOG_LEVEL"

// Config holds the settings for a collapse run.
type Config struct {
	MinLatencyUS int    `yaml:"min_latency_us"`
	LogLevel     string `yaml:"log_level"`
	Strict       bool   `yaml:"strict"`
	PprofOutput  string `yaml:"pprof_output"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		MinLatencyUS: collapse.DefaultMinLatencyUS,
		LogLevel:     "warn",
	}
}

// Load builds a configuration from an optional YAML file and the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies MIN_LATENCY_US and the log level from the
// environment. A threshold that is not a non-negative integer is ignored.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := ParseMinLatency(os.Getenv(EnvMinLatency)); ok {
		c.MinLatencyUS = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// ParseMinLatency parses a threshold value. ok is false for empty,
// non-numeric or negative input.
func ParseMinLatency(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MinLatencyUS < 0 {
		return fmt.Errorf("min_latency_us must not be negative, got %d", c.MinLatencyUS)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}
