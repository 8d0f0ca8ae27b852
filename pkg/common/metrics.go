package common

import (
	"context"
	"time"
)

// EngineMonitoring provides all core monitoring functionality for the batching engine. Also can be implemented as a no-op.
type EngineMonitoring interface {
	// Metrics returns the metrics labeler for the engine.
	Metrics() EngineMetricLabeler
}

// EngineMetricLabeler provides all metric recording functionality for the engine and its HTTP surface.
type EngineMetricLabeler interface {
	// With returns a new metrics labeler with the given key-value pairs.
	With(keyValues ...string) EngineMetricLabeler
	// IncrementActiveRequestsCounter increments the active requests counter.
	IncrementActiveRequestsCounter(ctx context.Context)
	// DecrementActiveRequestsCounter decrements the active requests counter.
	DecrementActiveRequestsCounter(ctx context.Context)
	// RecordHTTPRequestDuration records the HTTP request duration.
	RecordHTTPRequestDuration(ctx context.Context, duration time.Duration, path, method string, status int)
	// IncrementBatchesDispatchedCounter increments the dispatched batches counter, labeled by flush trigger.
	IncrementBatchesDispatchedCounter(ctx context.Context, trigger string)
	// RecordBatchSize records the size of a dispatched batch.
	RecordBatchSize(ctx context.Context, size int64)
	// RecordDispatchDuration records the duration of one handler invocation.
	RecordDispatchDuration(ctx context.Context, duration time.Duration)
	// IncrementHandlerErrorsCounter increments the whole-batch handler failure counter.
	IncrementHandlerErrorsCounter(ctx context.Context)
	// IncrementContractViolationsCounter increments the handler contract violation counter.
	IncrementContractViolationsCounter(ctx context.Context)
	// RecordPendingRequestsGauge records the number of requests waiting in the queue.
	RecordPendingRequestsGauge(ctx context.Context, count int64)
	// RecordCompletionLatency records the time between enqueue and completion delivery.
	RecordCompletionLatency(ctx context.Context, latency time.Duration)
}
