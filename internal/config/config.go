// Package config holds the machine configuration: how many cores to
// bring up, what counter hardware the platform advertises, logging, and
// trace persistence. Files are YAML; NUCLEUS_* environment variables
// override individual fields after loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"nucleus/internal/klog"
)

// Config holds all nucleus configuration.
type Config struct {
	Machine MachineConfig `yaml:"machine"`
	Clock   ClockConfig   `yaml:"clock"`
	Logging LoggingConfig `yaml:"logging"`
	Trace   TraceConfig   `yaml:"trace"`
}

// MachineConfig sizes the simulated machine.
type MachineConfig struct {
	Cores int `yaml:"cores"`
}

// ClockConfig selects counter hardware and the battery clock.
type ClockConfig struct {
	// Deterministic forces the manual counter regardless of the
	// capability flags below. Scenario runs set this.
	Deterministic bool `yaml:"deterministic"`

	TSCStable bool `yaml:"tsc_stable"`
	PVClock   bool `yaml:"pvclock"`
	HPET      bool `yaml:"hpet"`

	// RTCEpoch seeds the battery clock in epoch seconds; zero means no
	// RTC is present.
	RTCEpoch uint64 `yaml:"rtc_epoch"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Verbose    bool            `yaml:"verbose"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // console, json
	Categories map[string]bool `yaml:"categories"`
}

// TraceConfig configures run trace persistence.
type TraceConfig struct {
	// DatabasePath locates the trace database; empty disables
	// persistence.
	DatabasePath string `yaml:"database_path"`
}

// Default returns the default configuration: one core, a stable TSC,
// no RTC, console logging at info.
func Default() *Config {
	return &Config{
		Machine: MachineConfig{Cores: 1},
		Clock:   ClockConfig{TSCStable: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating the directory
// when needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies NUCLEUS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NUCLEUS_CORES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Machine.Cores = n
		}
	}
	if v := os.Getenv("NUCLEUS_DETERMINISTIC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Clock.Deterministic = b
		}
	}
	if v := os.Getenv("NUCLEUS_RTC_EPOCH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Clock.RTCEpoch = n
		}
	}
	if v := os.Getenv("NUCLEUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NUCLEUS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("NUCLEUS_LOG_CATEGORIES"); v != "" {
		c.Logging.Categories = parseCategoryPairs(v)
	}
	if v := os.Getenv("NUCLEUS_TRACE_DB"); v != "" {
		c.Trace.DatabasePath = v
	}
}

// parseCategoryPairs parses "irq=true,clock=false" into a category
// map. Malformed pairs are skipped.
func parseCategoryPairs(s string) map[string]bool {
	m := make(map[string]bool)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		m[k] = b
	}
	return m
}

const maxCores = 64

// Validate checks the configuration for values the machine cannot be
// built from.
func (c *Config) Validate() error {
	if c.Machine.Cores < 1 || c.Machine.Cores > maxCores {
		return fmt.Errorf("invalid core count %d (valid: 1-%d)", c.Machine.Cores, maxCores)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: console, json)", c.Logging.Format)
	}
	return nil
}

// LogOptions maps the logging section onto the logger's options.
func (c *Config) LogOptions() klog.Options {
	return klog.Options{
		Verbose:    c.Logging.Verbose,
		Level:      c.Logging.Level,
		Categories: c.Logging.Categories,
		JSONFormat: c.Logging.Format == "json",
	}
}
