package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/metrics"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// EngineMetrics provides all metrics emitted by the batching engine and its HTTP surface.
type EngineMetrics struct {
	// HTTP Metrics
	activeRequestsUpDownCounter metric.Int64UpDownCounter
	requestDurationSeconds      metric.Float64Histogram

	// Engine Metrics
	batchesDispatchedCounter  metric.Int64Counter
	batchSizeHistogram        metric.Int64Histogram
	dispatchDurationSeconds   metric.Float64Histogram
	handlerErrorsCounter      metric.Int64Counter
	contractViolationsCounter metric.Int64Counter
	pendingRequestsGauge      metric.Int64Gauge
	completionLatencySeconds  metric.Float64Histogram
}

func InitMetrics() (em *EngineMetrics, err error) {
	em = &EngineMetrics{}

	em.activeRequestsUpDownCounter, err = beholder.GetMeter().Int64UpDownCounter(
		"batchkit_active_requests",
		metric.WithDescription("Total number of active requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register active requests up down counter: %w", err)
	}

	em.requestDurationSeconds, err = beholder.GetMeter().Float64Histogram("batchkit_http_request_duration_seconds",
		metric.WithDescription("Total duration of serving the HTTP request"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register http request duration histogram: %w", err)
	}

	em.batchesDispatchedCounter, err = beholder.GetMeter().Int64Counter(
		"batchkit_batches_dispatched_total",
		metric.WithDescription("Total number of batches dispatched to the handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register batches dispatched counter: %w", err)
	}

	em.batchSizeHistogram, err = beholder.GetMeter().Int64Histogram(
		"batchkit_batch_size",
		metric.WithDescription("Number of requests per dispatched batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register batch size histogram: %w", err)
	}

	em.dispatchDurationSeconds, err = beholder.GetMeter().Float64Histogram(
		"batchkit_dispatch_duration_seconds",
		metric.WithDescription("Total duration of one batch handler invocation"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register dispatch duration histogram: %w", err)
	}

	em.handlerErrorsCounter, err = beholder.GetMeter().Int64Counter(
		"batchkit_handler_errors_total",
		metric.WithDescription("Total number of whole-batch handler failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register handler errors counter: %w", err)
	}

	em.contractViolationsCounter, err = beholder.GetMeter().Int64Counter(
		"batchkit_contract_violations_total",
		metric.WithDescription("Total number of handler results whose length did not match the batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register contract violations counter: %w", err)
	}

	em.pendingRequestsGauge, err = beholder.GetMeter().Int64Gauge(
		"batchkit_pending_requests",
		metric.WithDescription("Total number of requests waiting in the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register pending requests gauge: %w", err)
	}

	em.completionLatencySeconds, err = beholder.GetMeter().Float64Histogram(
		"batchkit_completion_latency_seconds",
		metric.WithDescription("Latency between enqueue and completion delivery"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register completion latency histogram: %w", err)
	}

	return em, nil
}

// Note: due to the OTEL specification, all histogram buckets must be defined when the beholder client is created.
func MetricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "batchkit_http_request_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "batchkit_dispatch_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "batchkit_completion_latency_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "batchkit_batch_size"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			}},
		),
	}
}

var _ common.EngineMetricLabeler = (*EngineMetricLabeler)(nil)

type EngineMetricLabeler struct {
	metrics.Labeler
	em *EngineMetrics
}

func NewEngineMetricLabeler(labeler metrics.Labeler, em *EngineMetrics) common.EngineMetricLabeler {
	return &EngineMetricLabeler{
		Labeler: labeler,
		em:      em,
	}
}

func (c *EngineMetricLabeler) With(keyValues ...string) common.EngineMetricLabeler {
	return &EngineMetricLabeler{c.Labeler.With(keyValues...), c.em}
}

func (c *EngineMetricLabeler) IncrementActiveRequestsCounter(ctx context.Context) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.activeRequestsUpDownCounter.Add(ctx, 1, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) DecrementActiveRequestsCounter(ctx context.Context) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.activeRequestsUpDownCounter.Add(ctx, -1, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) RecordHTTPRequestDuration(ctx context.Context, duration time.Duration, path, method string, status int) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.requestDurationSeconds.Record(ctx, duration.Seconds(), metric.WithAttributes([]attribute.KeyValue{
		attribute.String("path", path),
		attribute.String("method", method),
		attribute.Int("status", status),
	}...), metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) IncrementBatchesDispatchedCounter(ctx context.Context, trigger string) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.batchesDispatchedCounter.Add(ctx, 1, metric.WithAttributes([]attribute.KeyValue{
		attribute.String("trigger", trigger),
	}...), metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) RecordBatchSize(ctx context.Context, size int64) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.batchSizeHistogram.Record(ctx, size, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) RecordDispatchDuration(ctx context.Context, duration time.Duration) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.dispatchDurationSeconds.Record(ctx, duration.Seconds(), metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) IncrementHandlerErrorsCounter(ctx context.Context) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.handlerErrorsCounter.Add(ctx, 1, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) IncrementContractViolationsCounter(ctx context.Context) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.contractViolationsCounter.Add(ctx, 1, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) RecordPendingRequestsGauge(ctx context.Context, count int64) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.pendingRequestsGauge.Record(ctx, count, metric.WithAttributes(otelLabels...))
}

func (c *EngineMetricLabeler) RecordCompletionLatency(ctx context.Context, latency time.Duration) {
	otelLabels := beholder.OtelAttributes(c.Labels).AsStringAttributes()
	c.em.completionLatencySeconds.Record(ctx, latency.Seconds(), metric.WithAttributes(otelLabels...))
}
