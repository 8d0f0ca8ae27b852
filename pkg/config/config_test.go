package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTOML() []byte {
	return []byte(`
[Engine]
BatchIntervalMillis = 25
BatchMax = 100
PoolSize = 500

[Upstream]
URL = "http://localhost:8545"
RequestTimeoutSeconds = 10
FailureThreshold = 5
SuccessThreshold = 2
CircuitBreakerDelaySeconds = 30
MaxConcurrentBatches = 50
MaxBatchesPerSecond = 200

[API]
Port = 8080

[Monitoring]
Enabled = true
Type = "beholder"
PyroscopeServerAddress = "http://localhost:4040"

[Monitoring.Beholder]
InsecureConnection = true
OtelExporterGRPCEndpoint = "localhost:4317"
MetricReaderInterval = 10
TraceSampleRatio = 0.5
TraceBatchTimeout = 10
`)
}

func TestLoadConfigFromBytes(t *testing.T) {
	cfg, err := LoadConfigFromBytes(validTOML())
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Engine.BatchIntervalMillis)
	assert.Equal(t, 100, cfg.Engine.BatchMax)
	assert.Equal(t, 500, cfg.Engine.PoolSize)
	assert.Equal(t, "http://localhost:8545", cfg.Upstream.URL)
	assert.Equal(t, uint(50), cfg.Upstream.MaxConcurrentBatches)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, "beholder", cfg.Monitoring.Type)
	assert.Equal(t, 0.5, cfg.Monitoring.Beholder.TraceSampleRatio)
}

func TestLoadConfigFromBytes_InvalidTOML(t *testing.T) {
	_, err := LoadConfigFromBytes([]byte(`[Engine`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse TOML config")
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfigFromBytes(validTOML())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative batch interval",
			mutate:  func(c *Config) { c.Engine.BatchIntervalMillis = -1 },
			wantErr: "batch interval",
		},
		{
			name:    "negative batch max",
			mutate:  func(c *Config) { c.Engine.BatchMax = -1 },
			wantErr: "batch max",
		},
		{
			name:   "zero batch max means timer only",
			mutate: func(c *Config) { c.Engine.BatchMax = 0 },
		},
		{
			name:    "missing upstream URL",
			mutate:  func(c *Config) { c.Upstream.URL = "" },
			wantErr: "upstream URL is required",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api port",
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api port",
		},
		{
			name:    "monitoring enabled without type",
			mutate:  func(c *Config) { c.Monitoring.Type = "" },
			wantErr: "monitoring type is required",
		},
		{
			name: "monitoring disabled skips beholder validation",
			mutate: func(c *Config) {
				c.Monitoring.Enabled = false
				c.Monitoring.Beholder.MetricReaderInterval = 0
			},
		},
		{
			name: "noop monitoring skips beholder validation",
			mutate: func(c *Config) {
				c.Monitoring.Type = "noop"
				c.Monitoring.Beholder.MetricReaderInterval = 0
			},
		},
		{
			name:    "beholder metric reader interval must be positive",
			mutate:  func(c *Config) { c.Monitoring.Beholder.MetricReaderInterval = 0 },
			wantErr: "metric_reader_interval",
		},
		{
			name:    "beholder trace sample ratio out of range",
			mutate:  func(c *Config) { c.Monitoring.Beholder.TraceSampleRatio = 1.5 },
			wantErr: "trace_sample_ratio",
		},
		{
			name:    "beholder trace batch timeout must be positive",
			mutate:  func(c *Config) { c.Monitoring.Beholder.TraceBatchTimeout = 0 },
			wantErr: "trace_batch_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_FromEnvPath(t *testing.T) {
	path := t.TempDir() + "/config.toml"
	require.NoError(t, os.WriteFile(path, validTOML(), 0o600))
	t.Setenv("BATCHPROXY_CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("BATCHPROXY_CONFIG_PATH", t.TempDir()+"/does-not-exist.toml")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
