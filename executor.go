package shield

import (
	"context"
	"errors"
	"time"

	"github.com/cpa02cmz/quanforge-shield/internal/backoff"
)

type attemptResult struct {
	value any
	err   error
}

// executeWithRetry runs op under the dependency's breaker with the configured
// attempt and time budgets. Deadlines are enforced through context
// cancellation, not cooperative checks: an attempt that overruns its deadline
// is abandoned and its late result discarded. Breaker admission is consumed
// once per call and returned on every exit path; only the attempt that ends
// the call is recorded into the breaker, while every attempt is recorded into
// metrics.
func (c *Client) executeWithRetry(ctx context.Context, dep string, op Operation, retry RetryConfig, timeout TimeoutConfig, info *CallInfo) (any, error) {
	if timeout.Total > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout.Total)
		defer cancel()
	}

	predicate := retry.RetryablePredicate
	if predicate == nil {
		predicate = DefaultRetryablePredicate
	}
	calc := backoff.Exponential()
	if retry.Decorrelated {
		calc = backoff.Decorrelated()
	}
	maxAttempts := retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	breaker := c.breakers.Get(dep)

	// Admission is checked once per call. A call admitted as the half-open
	// trial keeps that admission across all of its attempts; the call-ending
	// outcome returns it, or ReleaseTrial does when the caller cancels.
	if !breaker.Allow() {
		c.observeBreaker(dep, breaker)
		c.snapshots.recordCircuitOpen(dep)
		if c.debugEnabled(c.debug.LogCircuit) {
			c.logger.Warn("circuit breaker open", "callID", info.CallID, "dependency", dep)
		}
		return nil, &CallError{
			Kind:       ErrorKindCircuitOpen,
			Dependency: dep,
			Message:    "circuit breaker is open",
			CallID:     info.CallID,
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.snapshots.recordRetry(dep)
			if c.metrics != nil {
				c.metrics.RecordRetry(dep, attempt)
			}
			if c.debugEnabled(c.debug.LogRetries) {
				c.logger.Info("retry attempt", "callID", info.CallID, "dependency", dep, "attempt", attempt, "maxAttempts", maxAttempts)
			}
		}

		attemptStart := time.Now()
		value, err := runAttempt(ctx, op, timeout.PerAttempt)
		latency := time.Since(attemptStart)

		if err == nil {
			breaker.RecordOutcome(true)
			c.observeBreaker(dep, breaker)
			c.snapshots.recordAttempt(dep, attemptSuccess, latency)
			if c.metrics != nil {
				c.metrics.RecordAttempt(dep, "success", latency)
			}
			return value, nil
		}

		timedOut := errors.Is(err, context.DeadlineExceeded)
		if timedOut {
			c.snapshots.recordAttempt(dep, attemptTimeout, latency)
		} else {
			c.snapshots.recordAttempt(dep, attemptFailure, latency)
		}
		if c.metrics != nil {
			outcome := "error"
			if timedOut {
				outcome = "timeout"
			}
			c.metrics.RecordAttempt(dep, outcome, latency)
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				// The total budget ended the call; a timeout is a failure
				// from the dependency-health point of view.
				breaker.RecordOutcome(false)
				c.observeBreaker(dep, breaker)
				return nil, &CallError{
					Kind:       ErrorKindTimeout,
					Dependency: dep,
					Message:    "total deadline exceeded",
					Cause:      lastErr,
					Attempts:   attempt,
					CallID:     info.CallID,
				}
			}
			// Caller cancellation says nothing about dependency health;
			// return a held trial admission without recording an outcome.
			breaker.ReleaseTrial()
			return nil, ctxErr
		}

		// A per-attempt timeout with total budget left is retryable.
		if !timedOut && !predicate(err) {
			breaker.RecordOutcome(false)
			c.observeBreaker(dep, breaker)
			return nil, &CallError{
				Kind:       ErrorKindUnderlying,
				Dependency: dep,
				Message:    "dependency call failed",
				Cause:      err,
				Attempts:   attempt,
				CallID:     info.CallID,
			}
		}

		if attempt == maxAttempts {
			break
		}

		delay := calc.Delay(attempt, retry.BaseDelay, retry.MaxDelay, retry.Multiplier, retry.Jitter)
		if c.debugEnabled(c.debug.LogRetries) {
			c.logger.Info("scheduling retry", "callID", info.CallID, "dependency", dep, "attempt", attempt+1, "backoff", delay)
		}
		if err := sleepContext(ctx, delay); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				breaker.RecordOutcome(false)
				c.observeBreaker(dep, breaker)
				return nil, &CallError{
					Kind:       ErrorKindTimeout,
					Dependency: dep,
					Message:    "total deadline exceeded during backoff",
					Cause:      lastErr,
					Attempts:   attempt,
					CallID:     info.CallID,
				}
			}
			breaker.ReleaseTrial()
			return nil, err
		}
	}

	breaker.RecordOutcome(false)
	c.observeBreaker(dep, breaker)
	return nil, &CallError{
		Kind:       ErrorKindRetriesExhausted,
		Dependency: dep,
		Message:    "all retry attempts failed",
		Cause:      lastErr,
		Attempts:   maxAttempts,
		CallID:     info.CallID,
	}
}

// runAttempt executes one try, bounding it with a per-attempt deadline when
// configured. The result channel is buffered so an abandoned attempt's
// goroutine can finish and release its resources without a receiver.
func runAttempt(ctx context.Context, op Operation, perAttempt time.Duration) (any, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if perAttempt > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, perAttempt)
	}
	defer cancel()

	results := make(chan attemptResult, 1)
	go func() {
		value, err := op(attemptCtx)
		results <- attemptResult{value: value, err: err}
	}()

	select {
	case r := <-results:
		return r.value, r.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

// sleepContext waits for the backoff delay, aborting early when ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) observeBreaker(dep string, cb *CircuitBreaker) {
	if c.metrics != nil {
		c.metrics.RecordBreakerState(dep, cb.State())
	}
}
