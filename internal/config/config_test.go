package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
[aws]
region = "eu-west-1"
profile = "production"

[scanner]
concurrency = 6
describe_concurrency = 12
requests_per_second = 20.5
burst = 10
timeout = "90s"
lookup_timeout = "30s"

[watch]
interval = "15m"
security_groups = ["sg-0abc", "sg-0def"]
metrics_addr = ":9100"

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "sgscope-prod"

[otel.traces]
enabled = true
sample_rate = 0.5

[otel.metrics]
enabled = true

[log]
level = "debug"
format = "json"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "production", cfg.AWS.Profile)
	assert.Equal(t, 6, cfg.Scanner.Concurrency)
	assert.Equal(t, 12, cfg.Scanner.DescribeConcurrency)
	assert.Equal(t, 20.5, cfg.Scanner.RequestsPerSecond)
	assert.Equal(t, 10, cfg.Scanner.Burst)
	assert.Equal(t, 90*time.Second, cfg.Scanner.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Scanner.LookupTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Watch.Interval)
	assert.Equal(t, []string{"sg-0abc", "sg-0def"}, cfg.Watch.SecurityGroups)
	assert.Equal(t, ":9100", cfg.Watch.MetricsAddr)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.Equal(t, "sgscope-prod", cfg.OTEL.ServiceName)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 0.5, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	content := `
[aws]
region = "us-east-1"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	// Check defaults are applied
	assert.Equal(t, 4, cfg.Scanner.Concurrency)
	assert.Equal(t, 8, cfg.Scanner.DescribeConcurrency)
	assert.Equal(t, 10.0, cfg.Scanner.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Scanner.Burst)
	assert.Equal(t, 2*time.Minute, cfg.Scanner.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Scanner.LookupTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Watch.Interval)
	assert.Equal(t, ":9090", cfg.Watch.MetricsAddr)
	assert.Equal(t, "sgscope", cfg.OTEL.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.AWS.Region)
	assert.Equal(t, 4, cfg.Scanner.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Scanner.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Watch.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[aws
region = "us-east-1"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"scan timeout", "[scanner]\ntimeout = \"soon\"\n", "scanner.timeout"},
		{"lookup timeout", "[scanner]\nlookup_timeout = \"1 minute\"\n", "scanner.lookup_timeout"},
		{"watch interval", "[watch]\ninterval = \"hourly\"\n", "watch.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative concurrency", func(c *Config) { c.Scanner.Concurrency = -1 }, "concurrency"},
		{"zero describe concurrency", func(c *Config) { c.Scanner.DescribeConcurrency = 0 }, "describe_concurrency"},
		{"negative rate", func(c *Config) { c.Scanner.RequestsPerSecond = -2 }, "requests_per_second"},
		{"negative timeout", func(c *Config) { c.Scanner.Timeout = -time.Second }, "timeouts"},
		{"zero interval", func(c *Config) { c.Watch.Interval = 0 }, "interval"},
		{"sample rate", func(c *Config) { c.OTEL.Traces.SampleRate = 1.5 }, "sample_rate"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}
