package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/bulkhead"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/ratelimiter"
	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

// ResilienceConfig contains configuration for the resiliency policies
// wrapping the upstream client.
type ResilienceConfig struct {
	// Circuit Breaker configuration
	FailureThreshold    uint          // Number of failures before opening circuit (default: 5)
	SuccessThreshold    uint          // Number of successes to close circuit (default: 3)
	CircuitBreakerDelay time.Duration // Delay before attempting to close circuit (default: 3s)

	// Timeout configuration
	RequestTimeout time.Duration // Timeout for individual batch calls (default: 10s)

	// Bulkhead configuration
	MaxConcurrentBatches uint // Maximum concurrent batch calls (default: 5)

	// Rate Limiter configuration
	MaxBatchesPerSecond uint // Maximum batch calls per second (default: 10)
}

// DefaultResilienceConfig returns a configuration with sensible defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		FailureThreshold:     5,
		SuccessThreshold:     3,
		CircuitBreakerDelay:  3 * time.Second,
		RequestTimeout:       10 * time.Second,
		MaxConcurrentBatches: 5,
		MaxBatchesPerSecond:  10,
	}
}

// ResilientClient wraps a Client with failsafe policies. Batches are never
// retried here: a batch call is not idempotent in general, and the engine's
// propagation contract is to surface the failure to every completion handle
// exactly once.
//
// Policy order, outermost to innermost:
// RateLimiter -> Bulkhead -> CircuitBreaker -> Timeout.
type ResilientClient struct {
	underlying     *Client
	executor       failsafe.Executor[[]common.Result[Response]]
	circuitBreaker circuitbreaker.CircuitBreaker[[]common.Result[Response]]
	lggr           logger.Logger
}

// NewResilientClient wraps client with the resilience policies in config.
func NewResilientClient(client *Client, lggr logger.Logger, config ResilienceConfig) *ResilientClient {
	rl := ratelimiter.Bursty[[]common.Result[Response]](config.MaxBatchesPerSecond, time.Second)

	bh := bulkhead.Builder[[]common.Result[Response]](config.MaxConcurrentBatches).
		OnFull(func(event failsafe.ExecutionEvent[[]common.Result[Response]]) {
			lggr.Warnw("Bulkhead full, rejecting batch call", "max_concurrent", config.MaxConcurrentBatches)
		}).
		Build()

	cb := circuitbreaker.Builder[[]common.Result[Response]]().
		WithDelay(config.CircuitBreakerDelay).
		HandleIf(func(results []common.Result[Response], err error) bool {
			return err != nil
		}).
		OnOpen(func(event circuitbreaker.StateChangedEvent) {
			lggr.Warnw("Circuit breaker opened", "failures", config.FailureThreshold)
		}).
		OnHalfOpen(func(event circuitbreaker.StateChangedEvent) {
			lggr.Info("Circuit breaker entering half-open state, attempting recovery")
		}).
		OnClose(func(event circuitbreaker.StateChangedEvent) {
			lggr.Infow("Circuit breaker closed", "successes", config.SuccessThreshold)
		}).
		WithFailureThreshold(config.FailureThreshold).
		WithSuccessThreshold(config.SuccessThreshold).
		Build()

	timeoutPolicy := timeout.Builder[[]common.Result[Response]](config.RequestTimeout).
		OnTimeoutExceeded(func(event failsafe.ExecutionDoneEvent[[]common.Result[Response]]) {
			lggr.Warnw("Batch call timed out", "timeout", config.RequestTimeout)
		}).
		Build()

	return &ResilientClient{
		underlying:     client,
		executor:       failsafe.NewExecutor(rl, bh, cb, timeoutPolicy),
		circuitBreaker: cb,
		lggr:           logger.Named(lggr, "ResilientUpstream"),
	}
}

// Call executes one batch call with all failsafe policies applied.
func (r *ResilientClient) Call(ctx context.Context, reqs []Request) ([]common.Result[Response], error) {
	results, err := r.executor.GetWithExecution(func(exec failsafe.Execution[[]common.Result[Response]]) ([]common.Result[Response], error) {
		return r.underlying.Call(ctx, reqs)
	})
	if err != nil {
		return nil, r.handleError(err)
	}

	return results, nil
}

// Handler adapts the resilient client to the engine's batch handler contract.
func (r *ResilientClient) Handler() common.Handler[Request, Response] {
	return r.Call
}

// State returns the current state of the circuit breaker.
func (r *ResilientClient) State() circuitbreaker.State {
	return r.circuitBreaker.State()
}

// handleError processes errors and provides context-aware error messages.
func (r *ResilientClient) handleError(err error) error {
	if r.circuitBreaker.State() == circuitbreaker.OpenState {
		return fmt.Errorf("circuit breaker is open, upstream unavailable: %w", err)
	}

	return fmt.Errorf("batch call failed: %w", err)
}
