package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config provides all configuration for the batchproxy daemon.
type Config struct {
	// Engine is the configuration for the batching engine.
	Engine EngineConfig `toml:"Engine"`
	// Upstream is the configuration for the upstream JSON-RPC endpoint.
	Upstream UpstreamConfig `toml:"Upstream"`
	// API is the configuration for the HTTP surface.
	API APIConfig `toml:"API"`
	// Monitoring is the configuration for the monitoring system.
	Monitoring MonitoringConfig `toml:"Monitoring"`
}

// EngineConfig provides the flush policy of the batching engine.
type EngineConfig struct {
	// BatchIntervalMillis is the debounce window: how long after the first
	// enqueue of a cycle the engine waits before flushing (milliseconds).
	BatchIntervalMillis int64 `toml:"BatchIntervalMillis"`
	// BatchMax is the queue size that forces an immediate flush. 0 means
	// unlimited: only the timer flushes.
	BatchMax int `toml:"BatchMax"`
	// PoolSize caps concurrently in-flight batch dispatches.
	PoolSize int `toml:"PoolSize"`
}

// UpstreamConfig provides the upstream endpoint and its resilience policies.
type UpstreamConfig struct {
	// URL is the JSON-RPC 2.0 endpoint batches are posted to.
	URL string `toml:"URL"`
	// RequestTimeoutSeconds is the timeout for one batch call.
	RequestTimeoutSeconds int64 `toml:"RequestTimeoutSeconds"`
	// FailureThreshold is the number of failures before the circuit opens.
	FailureThreshold uint `toml:"FailureThreshold"`
	// SuccessThreshold is the number of successes to close the circuit.
	SuccessThreshold uint `toml:"SuccessThreshold"`
	// CircuitBreakerDelaySeconds is the delay before recovery is attempted.
	CircuitBreakerDelaySeconds int64 `toml:"CircuitBreakerDelaySeconds"`
	// MaxConcurrentBatches is the bulkhead limit on in-flight batch calls.
	MaxConcurrentBatches uint `toml:"MaxConcurrentBatches"`
	// MaxBatchesPerSecond rate-limits batch calls to the upstream.
	MaxBatchesPerSecond uint `toml:"MaxBatchesPerSecond"`
}

// APIConfig provides the HTTP listener configuration.
type APIConfig struct {
	// Port is the port the HTTP API listens on.
	Port int `toml:"Port"`
}

// MonitoringConfig provides all configuration for the monitoring system.
type MonitoringConfig struct {
	// Enabled enables the monitoring system.
	Enabled bool `toml:"Enabled"`
	// Type is the type of monitoring system to use (beholder, noop).
	Type string `toml:"Type"`
	// Beholder is the configuration for the beholder client (Not required if type is noop).
	Beholder BeholderConfig `toml:"Beholder"`
	// PyroscopeServerAddress enables continuous profiling when non-empty.
	PyroscopeServerAddress string `toml:"PyroscopeServerAddress"`
}

// BeholderConfig wraps the beholder.Config struct to expose a minimal config for the daemon.
type BeholderConfig struct {
	// InsecureConnection disables TLS for the beholder client.
	InsecureConnection bool `toml:"InsecureConnection"`
	// CACertFile is the path to the CA certificate file for the beholder client.
	CACertFile string `toml:"CACertFile"`
	// OtelExporterGRPCEndpoint is the endpoint for the beholder client to export to the collector.
	OtelExporterGRPCEndpoint string `toml:"OtelExporterGRPCEndpoint"`
	// OtelExporterHTTPEndpoint is the endpoint for the beholder client to export to the collector.
	OtelExporterHTTPEndpoint string `toml:"OtelExporterHTTPEndpoint"`
	// LogStreamingEnabled enables log streaming to the collector.
	LogStreamingEnabled bool `toml:"LogStreamingEnabled"`
	// MetricReaderInterval is the interval to scrape metrics (in seconds).
	MetricReaderInterval int64 `toml:"MetricReaderInterval"`
	// TraceSampleRatio is the ratio of traces to sample.
	TraceSampleRatio float64 `toml:"TraceSampleRatio"`
	// TraceBatchTimeout is the timeout for a batch of traces.
	TraceBatchTimeout int64 `toml:"TraceBatchTimeout"`
}

// LoadConfig loads configuration from a TOML file. The path is taken from
// BATCHPROXY_CONFIG_PATH, defaulting to config.toml.
func LoadConfig() (*Config, error) {
	filepath, ok := os.LookupEnv("BATCHPROXY_CONFIG_PATH")
	if !ok {
		filepath = "config.toml"
	}
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes loads configuration from TOML bytes.
// It returns an error if the data cannot be parsed.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs basic validation on the configuration.
// It returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Engine.BatchIntervalMillis < 0 {
		return fmt.Errorf("engine batch interval must be non-negative, got %d", c.Engine.BatchIntervalMillis)
	}

	if c.Engine.BatchMax < 0 {
		return fmt.Errorf("engine batch max must be non-negative, got %d", c.Engine.BatchMax)
	}

	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream URL is required")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port must be between 1 and 65535, got %d", c.API.Port)
	}

	if c.Monitoring.Enabled && c.Monitoring.Type == "" {
		return fmt.Errorf("monitoring type is required when monitoring is enabled")
	}

	// Validate beholder config if monitoring is enabled and type is beholder
	if c.Monitoring.Enabled && c.Monitoring.Type == "beholder" {
		if err := c.Monitoring.Beholder.Validate(); err != nil {
			return fmt.Errorf("beholder config validation failed: %w", err)
		}
	}

	return nil
}

// Validate performs validation on the beholder configuration.
func (b *BeholderConfig) Validate() error {
	if b.MetricReaderInterval <= 0 {
		return fmt.Errorf("metric_reader_interval must be positive, got %d", b.MetricReaderInterval)
	}

	if b.TraceSampleRatio < 0 || b.TraceSampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1, got %f", b.TraceSampleRatio)
	}

	if b.TraceBatchTimeout <= 0 {
		return fmt.Errorf("trace_batch_timeout must be positive, got %d", b.TraceBatchTimeout)
	}

	return nil
}
