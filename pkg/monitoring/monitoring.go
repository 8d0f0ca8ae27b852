package monitoring

import (
	"fmt"

	"github.com/grafana/pyroscope-go"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/metrics"
)

var _ common.EngineMonitoring = (*BeholderMonitoring)(nil)

// BeholderMonitoring emits engine metrics through a beholder client and
// profiles the process with pyroscope.
type BeholderMonitoring struct {
	metrics common.EngineMetricLabeler
}

// InitMonitoring creates the beholder client, registers it globally and
// initializes the engine metric instruments. PyroscopeServerAddress may be
// empty to disable continuous profiling.
func InitMonitoring(config beholder.Config, pyroscopeServerAddress string) (common.EngineMonitoring, error) {
	// Note: due to OTEL spec, all histogram buckets must be defined when the beholder client is created.
	config.MetricViews = MetricViews()

	client, err := beholder.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create beholder client: %w", err)
	}

	// Set the beholder client and global otel providers, so they don't have to be referenced elsewhere.
	beholder.SetClient(client)
	beholder.SetGlobalOtelProviders()

	engineMetrics, err := InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine metrics: %w", err)
	}

	if pyroscopeServerAddress != "" {
		if _, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "batchproxy",
			ServerAddress:   pyroscopeServerAddress,
			Logger:          pyroscope.StandardLogger,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileGoroutines,
				pyroscope.ProfileBlockDuration,
				pyroscope.ProfileMutexDuration,
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize pyroscope client: %w", err)
		}
	}

	return &BeholderMonitoring{
		metrics: NewEngineMetricLabeler(metrics.NewLabeler(), engineMetrics),
	}, nil
}

func (m *BeholderMonitoring) Metrics() common.EngineMetricLabeler {
	return m.metrics
}
