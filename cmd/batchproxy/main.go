package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/batchkit/batchkit/pkg/api"
	"github.com/batchkit/batchkit/pkg/common"
	"github.com/batchkit/batchkit/pkg/config"
	"github.com/batchkit/batchkit/pkg/engine"
	"github.com/batchkit/batchkit/pkg/monitoring"
	"github.com/batchkit/batchkit/pkg/upstream"
	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

func main() {
	// Setup logging
	lggr, err := logger.NewWith(func(cfg *zap.Config) {
		cfg.Development = true
		cfg.Encoding = "console"
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	})
	if err != nil {
		panic(err)
	}

	// Use SugaredLogger for better API
	lggr = logger.Sugared(lggr)

	cfg, err := config.LoadConfig()
	if err != nil {
		lggr.Errorw("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	mon := initMonitoring(lggr, cfg)

	// The upstream batch client is the engine's handler: one flush becomes
	// one JSON-RPC batch call, wrapped in the resilience policies.
	client, err := upstream.NewClient(upstream.ClientConfig{
		URL:            cfg.Upstream.URL,
		RequestTimeout: time.Duration(cfg.Upstream.RequestTimeoutSeconds) * time.Second,
		Logger:         lggr,
	})
	if err != nil {
		lggr.Errorw("Failed to create upstream client", "error", err)
		os.Exit(1)
	}

	resilience := upstream.DefaultResilienceConfig()
	if cfg.Upstream.FailureThreshold > 0 {
		resilience.FailureThreshold = cfg.Upstream.FailureThreshold
	}
	if cfg.Upstream.SuccessThreshold > 0 {
		resilience.SuccessThreshold = cfg.Upstream.SuccessThreshold
	}
	if cfg.Upstream.CircuitBreakerDelaySeconds > 0 {
		resilience.CircuitBreakerDelay = time.Duration(cfg.Upstream.CircuitBreakerDelaySeconds) * time.Second
	}
	if cfg.Upstream.RequestTimeoutSeconds > 0 {
		resilience.RequestTimeout = time.Duration(cfg.Upstream.RequestTimeoutSeconds) * time.Second
	}
	if cfg.Upstream.MaxConcurrentBatches > 0 {
		resilience.MaxConcurrentBatches = cfg.Upstream.MaxConcurrentBatches
	}
	if cfg.Upstream.MaxBatchesPerSecond > 0 {
		resilience.MaxBatchesPerSecond = cfg.Upstream.MaxBatchesPerSecond
	}
	resilient := upstream.NewResilientClient(client, lggr, resilience)

	eng, err := engine.New(
		lggr,
		engine.Config{
			BatchInterval: time.Duration(cfg.Engine.BatchIntervalMillis) * time.Millisecond,
			BatchMax:      cfg.Engine.BatchMax,
			PoolSize:      cfg.Engine.PoolSize,
		},
		resilient.Handler(),
		engine.WithMonitoring[upstream.Request, upstream.Response](mon),
	)
	if err != nil {
		lggr.Errorw("Failed to create engine", "error", err)
		os.Exit(1)
	}

	eng.Start(ctx)
	defer eng.Close()

	v1 := api.NewV1API(lggr, eng, mon)
	if err := api.Serve(v1, cfg.API.Port); err != nil {
		lggr.Errorw("Failed to serve API", "error", err)
		os.Exit(1)
	}
}

func initMonitoring(lggr logger.Logger, cfg *config.Config) common.EngineMonitoring {
	if !cfg.Monitoring.Enabled || cfg.Monitoring.Type != "beholder" {
		return monitoring.NewNoopEngineMonitoring()
	}

	mon, err := monitoring.InitMonitoring(beholder.Config{
		InsecureConnection:       cfg.Monitoring.Beholder.InsecureConnection,
		CACertFile:               cfg.Monitoring.Beholder.CACertFile,
		OtelExporterGRPCEndpoint: cfg.Monitoring.Beholder.OtelExporterGRPCEndpoint,
		OtelExporterHTTPEndpoint: cfg.Monitoring.Beholder.OtelExporterHTTPEndpoint,
		LogStreamingEnabled:      cfg.Monitoring.Beholder.LogStreamingEnabled,
		MetricReaderInterval:     time.Duration(cfg.Monitoring.Beholder.MetricReaderInterval) * time.Second,
		TraceSampleRatio:         cfg.Monitoring.Beholder.TraceSampleRatio,
		TraceBatchTimeout:        time.Duration(cfg.Monitoring.Beholder.TraceBatchTimeout) * time.Second,
	}, cfg.Monitoring.PyroscopeServerAddress)
	if err != nil {
		lggr.Errorw("Failed to initialize monitoring, falling back to noop", "error", err)
		return monitoring.NewNoopEngineMonitoring()
	}

	return mon
}
