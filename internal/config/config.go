// Package config handles TOML configuration for sgscope.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws"`
	Scanner ScannerConfig `toml:"scanner"`
	Watch   WatchConfig   `toml:"watch"`
	OTEL    OTELConfig    `toml:"otel"`
	Log     LogConfig     `toml:"log"`
}

// AWSConfig holds AWS provider settings.
// An empty region falls back to the SDK's default chain (AWS_REGION, shared config).
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// ScannerConfig holds scan settings.
type ScannerConfig struct {
	Concurrency         int           `toml:"concurrency"`
	DescribeConcurrency int           `toml:"describe_concurrency"`
	RequestsPerSecond   float64       `toml:"requests_per_second"`
	Burst               int           `toml:"burst"`
	TimeoutStr          string        `toml:"timeout"`
	LookupTimeoutStr    string        `toml:"lookup_timeout"`
	Timeout             time.Duration `toml:"-"`
	LookupTimeout       time.Duration `toml:"-"`
}

// WatchConfig holds settings for the watch daemon.
type WatchConfig struct {
	IntervalStr    string        `toml:"interval"`
	Interval       time.Duration `toml:"-"`
	SecurityGroups []string      `toml:"security_groups"`
	MetricsAddr    string        `toml:"metrics_addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// defaults always parse
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scanner.Concurrency == 0 {
		cfg.Scanner.Concurrency = 4
	}
	if cfg.Scanner.DescribeConcurrency == 0 {
		cfg.Scanner.DescribeConcurrency = 8
	}
	if cfg.Scanner.RequestsPerSecond == 0 {
		cfg.Scanner.RequestsPerSecond = 10
	}
	if cfg.Scanner.Burst == 0 {
		cfg.Scanner.Burst = 5
	}
	if cfg.Scanner.TimeoutStr == "" {
		cfg.Scanner.TimeoutStr = "2m"
	}
	if cfg.Scanner.LookupTimeoutStr == "" {
		cfg.Scanner.LookupTimeoutStr = "45s"
	}
	if cfg.Watch.IntervalStr == "" {
		cfg.Watch.IntervalStr = "10m"
	}
	if cfg.Watch.MetricsAddr == "" {
		cfg.Watch.MetricsAddr = ":9090"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "sgscope"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Scanner.Timeout, err = parseDuration("scanner.timeout", cfg.Scanner.TimeoutStr); err != nil {
		return err
	}
	if cfg.Scanner.LookupTimeout, err = parseDuration("scanner.lookup_timeout", cfg.Scanner.LookupTimeoutStr); err != nil {
		return err
	}
	if cfg.Watch.Interval, err = parseDuration("watch.interval", cfg.Watch.IntervalStr); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, s, err)
	}
	return d, nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Scanner.Concurrency < 1 {
		return fmt.Errorf("scanner: concurrency must be at least 1 (got %d)", c.Scanner.Concurrency)
	}
	if c.Scanner.DescribeConcurrency < 1 {
		return fmt.Errorf("scanner: describe_concurrency must be at least 1 (got %d)", c.Scanner.DescribeConcurrency)
	}
	if c.Scanner.RequestsPerSecond < 0 {
		return fmt.Errorf("scanner: requests_per_second must not be negative (got %v)", c.Scanner.RequestsPerSecond)
	}
	if c.Scanner.Timeout < 0 || c.Scanner.LookupTimeout < 0 {
		return fmt.Errorf("scanner: timeouts must not be negative")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch: interval must be positive (got %s)", c.Watch.Interval)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}
