package monitoring

import (
	"context"
	"time"

	"github.com/batchkit/batchkit/pkg/common"
)

var (
	_ common.EngineMonitoring    = (*NoopEngineMonitoring)(nil)
	_ common.EngineMetricLabeler = (*NoopEngineMetricLabeler)(nil)
)

// NoopEngineMonitoring provides a no-op implementation of EngineMonitoring.
// Useful for testing or when monitoring is disabled.
type NoopEngineMonitoring struct{}

func NewNoopEngineMonitoring() common.EngineMonitoring {
	return &NoopEngineMonitoring{}
}

func (n *NoopEngineMonitoring) Metrics() common.EngineMetricLabeler {
	return &NoopEngineMetricLabeler{}
}

// NoopEngineMetricLabeler provides a no-op implementation of EngineMetricLabeler
// that doesn't actually record any metrics.
type NoopEngineMetricLabeler struct{}

func NewNoopEngineMetricLabeler() common.EngineMetricLabeler {
	return &NoopEngineMetricLabeler{}
}

// With returns a new noop labeler with the given key-value pairs (no-op).
func (n *NoopEngineMetricLabeler) With(keyValues ...string) common.EngineMetricLabeler {
	return n
}

// All metric recording methods are no-ops.
func (n *NoopEngineMetricLabeler) IncrementActiveRequestsCounter(ctx context.Context) {}
func (n *NoopEngineMetricLabeler) DecrementActiveRequestsCounter(ctx context.Context) {}
func (n *NoopEngineMetricLabeler) RecordHTTPRequestDuration(ctx context.Context, duration time.Duration, path, method string, status int) {
}

func (n *NoopEngineMetricLabeler) IncrementBatchesDispatchedCounter(ctx context.Context, trigger string) {
}
func (n *NoopEngineMetricLabeler) RecordBatchSize(ctx context.Context, size int64)                    {}
func (n *NoopEngineMetricLabeler) RecordDispatchDuration(ctx context.Context, duration time.Duration) {}
func (n *NoopEngineMetricLabeler) IncrementHandlerErrorsCounter(ctx context.Context)                  {}
func (n *NoopEngineMetricLabeler) IncrementContractViolationsCounter(ctx context.Context)             {}
func (n *NoopEngineMetricLabeler) RecordPendingRequestsGauge(ctx context.Context, count int64)        {}
func (n *NoopEngineMetricLabeler) RecordCompletionLatency(ctx context.Context, latency time.Duration) {}
