package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/batchkit/batchkit/pkg/monitoring"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

var (
	// ErrNotStarted is delivered to completion handles for requests
	// submitted before Start was called.
	ErrNotStarted = errors.New("engine not started: call Start(ctx) before Submit")
	// ErrClosed is delivered to completion handles for requests submitted
	// after Close.
	ErrClosed = errors.New("engine closed: no new requests accepted")
	// ErrIncompleteBatchResult marks entries the handler left uncovered by
	// returning fewer outcomes than the batch contained.
	ErrIncompleteBatchResult = errors.New("handler produced an incomplete batch result")
)

// Flush trigger labels recorded on the dispatched-batches metric.
const (
	triggerSize  = "size"
	triggerTimer = "timer"
	triggerClose = "close"
)

const defaultPoolSize = 1000

// Config controls the flush policy of an Engine.
type Config struct {
	// BatchInterval is the debounce window: the delay between the first
	// enqueue of an accumulation cycle and the timer-driven flush. An
	// interval of zero still defers the flush by one scheduling tick so
	// same-tick enqueues coalesce.
	BatchInterval time.Duration
	// BatchMax is the size threshold that forces an immediate flush.
	// Zero means unlimited: only the timer flushes.
	BatchMax int
	// PoolSize caps the number of concurrently in-flight handler
	// invocations. A flush arriving while all workers are busy is
	// rejected, not queued: every member of that batch fails with a
	// pool-overload error. Defaults to 1000.
	PoolSize int
}

func (c *Config) validate() error {
	if c.BatchInterval < 0 {
		return errors.New("batch interval must be non-negative")
	}

	if c.BatchMax < 0 {
		return errors.New("batch max must be non-negative, use 0 for unlimited")
	}

	if c.PoolSize < 0 {
		return errors.New("pool size must be non-negative")
	}

	return nil
}

// Engine accumulates individually submitted requests and dispatches them
// to a batch-capable handler in groups, routing each per-request outcome
// back to the completion handle returned by Submit.
//
// Submit, timer fires and handler completions are serialized with respect
// to the queue and the single debounce timer; the handler invocation
// itself runs on a worker pool so a slow batch never blocks accumulation
// of the next one.
type Engine[Req, Res any] struct {
	lggr       logger.Logger
	config     Config
	handler    common.Handler[Req, Res]
	monitoring common.EngineMonitoring
	pool       *ants.Pool
	queue      *queue[Req, Res]

	mu         sync.Mutex
	timer      *time.Timer
	timerArmed bool
	started    bool
	closed     bool

	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  sync.WaitGroup
	closeOnce sync.Once
}

// Option is the functional option type for Engine.
type Option[Req, Res any] func(*Engine[Req, Res])

// WithMonitoring sets the monitoring implementation. Defaults to a no-op.
func WithMonitoring[Req, Res any](monitoring common.EngineMonitoring) Option[Req, Res] {
	return func(e *Engine[Req, Res]) {
		e.monitoring = monitoring
	}
}

// New creates an Engine dispatching to handler. The handler is required:
// a nil handler is a configuration error reported here, never later.
func New[Req, Res any](lggr logger.Logger, config Config, handler common.Handler[Req, Res], opts ...Option[Req, Res]) (*Engine[Req, Res], error) {
	if lggr == nil {
		return nil, errors.New("logger is required")
	}

	if handler == nil {
		return nil, errors.New("batch handler is required")
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if config.PoolSize == 0 {
		config.PoolSize = defaultPoolSize
	}

	// The pool must never park a submitter: flushes happen under e.mu, so
	// a blocking pool at capacity would stall every Submit and the timer.
	// A saturated pool instead fails the submit and the batch is rejected.
	pool, err := ants.NewPool(config.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	e := &Engine[Req, Res]{
		lggr:       logger.Named(lggr, "Engine"),
		config:     config,
		handler:    handler,
		monitoring: monitoring.NewNoopEngineMonitoring(),
		pool:       pool,
		queue:      newQueue[Req, Res](),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Start binds the engine to its lifecycle context. The context is passed
// to every handler invocation; canceling it does not reject already
// in-flight batches, it only lets the handler observe cancellation.
func (e *Engine[Req, Res]) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true
}

// Submit enqueues a payload and returns the one-shot channel its outcome
// will arrive on. Submit never blocks and never fails synchronously:
// lifecycle failures are delivered through the returned channel like any
// other rejection.
func (e *Engine[Req, Res]) Submit(payload Req) <-chan common.Result[Res] {
	ent := &entry[Req, Res]{
		payload:    payload,
		done:       newCompletion[Res](),
		enqueuedAt: time.Now(),
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		ent.done.resolve(common.Err[Res](ErrClosed))
		return ent.done.ch
	case !e.started:
		e.mu.Unlock()
		ent.done.resolve(common.Err[Res](ErrNotStarted))
		return ent.done.ch
	}

	size := e.queue.enqueue(ent)
	e.metrics().RecordPendingRequestsGauge(e.ctx, int64(size))

	if e.config.BatchMax > 0 && size >= e.config.BatchMax {
		// Threshold reached: drain on the submitting goroutine so the
		// batch is taken before any later enqueue can join it.
		e.flushLocked(triggerSize)
	} else if !e.timerArmed {
		// Arming while armed would reset the window; the debounce
		// contract is a single timer per accumulation cycle.
		e.timerArmed = true
		e.timer = time.AfterFunc(e.config.BatchInterval, e.onTimer)
	}
	e.mu.Unlock()

	return ent.done.ch
}

func (e *Engine[Req, Res]) onTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timerArmed = false
	e.flushLocked(triggerTimer)
}

// flushLocked disarms the timer, drains the queue and hands the batch to
// the dispatch pool. Flushing an empty queue is a no-op. Callers must
// hold e.mu.
func (e *Engine[Req, Res]) flushLocked(trigger string) {
	if e.timerArmed {
		e.timer.Stop()
		e.timerArmed = false
	}

	batch := e.queue.drainAll()
	if len(batch) == 0 {
		return
	}

	e.metrics().IncrementBatchesDispatchedCounter(e.ctx, trigger)
	e.metrics().RecordBatchSize(e.ctx, int64(len(batch)))
	e.metrics().RecordPendingRequestsGauge(e.ctx, 0)
	e.lggr.Debugw("Flushing batch", "size", len(batch), "trigger", trigger)

	e.inFlight.Add(1)
	if err := e.pool.Submit(func() {
		defer e.inFlight.Done()
		e.dispatch(batch)
	}); err != nil {
		e.inFlight.Done()
		e.lggr.Errorw("Failed to submit batch to dispatch pool", "error", err, "size", len(batch))
		e.rejectAll(batch, fmt.Errorf("failed to submit batch to dispatch pool: %w", err))
	}
}

// dispatch invokes the handler exactly once with the batch payloads in
// enqueue order and fans the outcome back to each entry's completion.
func (e *Engine[Req, Res]) dispatch(batch []*entry[Req, Res]) {
	payloads := make([]Req, len(batch))
	for i, ent := range batch {
		payloads[i] = ent.payload
	}

	start := time.Now()
	results, err := e.handler(e.ctx, payloads)
	e.metrics().RecordDispatchDuration(e.ctx, time.Since(start))

	e.demux(batch, results, err)
}

// demux routes a batch result back to the completion handles of the
// dispatched batch.
//
// A non-nil handler error is a whole-batch failure: every member is
// rejected with it and the outcome slice is ignored. Otherwise outcome i
// resolves or rejects entry i; entries beyond the end of a short outcome
// slice are rejected with ErrIncompleteBatchResult rather than left
// unresolved.
func (e *Engine[Req, Res]) demux(batch []*entry[Req, Res], results []common.Result[Res], err error) {
	if err != nil {
		e.metrics().IncrementHandlerErrorsCounter(e.ctx)
		e.lggr.Warnw("Batch handler failed, rejecting all members", "error", err, "size", len(batch))
		e.rejectAll(batch, err)
		return
	}

	if len(results) != len(batch) {
		e.metrics().IncrementContractViolationsCounter(e.ctx)
		e.lggr.Warnw("Batch handler returned a mismatched result set",
			"expected", len(batch),
			"got", len(results),
		)
	}

	for i, ent := range batch {
		if i < len(results) {
			e.complete(ent, results[i])
			continue
		}
		e.complete(ent, common.Err[Res](fmt.Errorf("%w: %d outcomes for %d requests, index %d missing",
			ErrIncompleteBatchResult, len(results), len(batch), i)))
	}
}

func (e *Engine[Req, Res]) rejectAll(batch []*entry[Req, Res], err error) {
	for _, ent := range batch {
		e.complete(ent, common.Err[Res](err))
	}
}

func (e *Engine[Req, Res]) complete(ent *entry[Req, Res], r common.Result[Res]) {
	if !ent.done.resolve(r) {
		e.lggr.Warnw("Completion already resolved, dropping duplicate delivery")
		return
	}
	e.metrics().RecordCompletionLatency(e.ctx, time.Since(ent.enqueuedAt))
}

// Close flushes whatever is still queued, waits for in-flight dispatches
// to deliver their results and releases the dispatch pool. Requests
// submitted after Close are rejected with ErrClosed. Safe to call more
// than once.
func (e *Engine[Req, Res]) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		if e.started {
			e.flushLocked(triggerClose)
		}
		e.mu.Unlock()

		e.inFlight.Wait()
		e.pool.Release()
		if e.cancel != nil {
			e.cancel()
		}
	})
	return nil
}

func (e *Engine[Req, Res]) metrics() common.EngineMetricLabeler {
	return e.monitoring.Metrics()
}
