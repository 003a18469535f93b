package shield

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client routes outbound calls through the resilience pipeline. Stages run in
// a fixed order: call logging, result cache, deduplication, rate limiting,
// circuit breaker, executor (timeout + retry), error normalization, duration
// logging. User middleware wraps the executor stage. A single Client is safe
// for concurrent use and owns all per-dependency state.
type Client struct {
	defaults   DependencyConfig
	depConfigs map[string]DependencyConfig
	tiers      map[Tier]TierLimit

	breakers   *BreakerGroup
	limiter    *TierLimiter
	dedup      *DeduplicationTracker
	cache      *ResultCache
	middleware []Middleware

	metrics   *MetricsCollector
	snapshots *snapshotRegistry
	logger    Logger
	debug     *DebugConfig

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	cfg := DefaultConfig()
	c := &Client{
		defaults:   cfg.Defaults,
		depConfigs: make(map[string]DependencyConfig),
		tiers:      cfg.Tiers,
		dedup:      NewDeduplicationTracker(),
		snapshots:  newSnapshotRegistry(),
		debug:      DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if c.debug == nil {
		c.debug = DefaultDebugConfig()
	}

	breakerConfigs := make(map[string]BreakerConfig, len(c.depConfigs))
	for name, dep := range c.depConfigs {
		merged := dep
		fillDependencyConfig(&merged, c.defaults)
		breakerConfigs[name] = merged.Breaker
	}
	c.breakers = NewBreakerGroup(c.defaults.Breaker, breakerConfigs)
	c.limiter = NewTierLimiter(c.tiers)

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Call executes op against the named dependency with the full pipeline
// applied. opts carries per-call overrides and the opt-in dedup, rate limit
// and cache flags; the zero value uses per-dependency defaults.
func (c *Client) Call(ctx context.Context, dependency string, op Operation, opts CallOptions) (any, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if op == nil {
		return nil, &CallError{Kind: ErrorKindValidation, Dependency: dependency, Message: "nil operation"}
	}

	start := time.Now()
	info := &CallInfo{Dependency: dependency}
	if c.debug != nil && c.debug.Enabled && c.debug.CallIDGen != nil {
		info.CallID = c.debug.CallIDGen()
	}

	if c.debugEnabled(c.debug.LogCalls) {
		c.logger.Debug("starting call", "callID", info.CallID, "dependency", dependency)
	}

	c.metrics.RecordCallStart(dependency)
	defer c.metrics.RecordCallEnd(dependency)

	cacheEnabled := c.cache != nil && opts.Cache != nil && opts.Cache.Enabled
	var cacheKey string
	if cacheEnabled {
		cacheKey = scopedKey(dependency, opts.Cache.Key)
		if value, ok := c.cache.Get(cacheKey); ok {
			c.snapshots.recordCacheHit(dependency)
			c.metrics.RecordCacheHit(dependency)
			if c.debugEnabled(c.debug.LogCache) {
				c.logger.Debug("cache hit", "callID", info.CallID, "dependency", dependency, "cacheKey", opts.Cache.Key)
			}
			c.finishCall(info, start, nil)
			return value, nil
		}
	}

	if opts.Dedup != nil && opts.Dedup.Enabled {
		dedupKey := scopedKey(dependency, opts.Dedup.Key)
		entry, owner := c.dedup.GetOrCreate(dedupKey)
		if !owner {
			c.snapshots.recordDedupHit(dependency)
			c.metrics.RecordDedupHit(dependency)
			if c.debugEnabled(c.debug.LogDedup) {
				c.logger.Debug("joined in-flight call", "callID", info.CallID, "dependency", dependency, "dedupKey", opts.Dedup.Key)
			}
			value, err := entry.Wait(ctx)
			c.finishCall(info, start, err)
			return value, err
		}

		value, err := c.callThrough(ctx, dependency, op, opts, info, cacheKey)
		c.dedup.Complete(dedupKey, value, err)
		c.finishCall(info, start, err)
		return value, err
	}

	value, err := c.callThrough(ctx, dependency, op, opts, info, cacheKey)
	c.finishCall(info, start, err)
	return value, err
}

// CallTyped is a generics convenience wrapper around Call for callers that
// want a concrete result type back.
func CallTyped[T any](ctx context.Context, c *Client, dependency string, op func(ctx context.Context) (T, error), opts CallOptions) (T, error) {
	var zero T
	value, err := c.Call(ctx, dependency, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, &CallError{
			Kind:       ErrorKindUnderlying,
			Dependency: dependency,
			Message:    fmt.Sprintf("unexpected result type %T", value),
		}
	}
	return typed, nil
}

// callThrough runs the rate limit stage, the middleware chain and the
// executor, then normalizes the outcome and fills the cache on success.
func (c *Client) callThrough(ctx context.Context, dependency string, op Operation, opts CallOptions, info *CallInfo, cacheKey string) (any, error) {
	if opts.RateLimit != nil {
		decision := c.limiter.CheckAndConsume(opts.RateLimit.Identifier, opts.RateLimit.Tier)
		if !decision.Allowed {
			c.snapshots.recordRateLimited(dependency)
			c.metrics.RecordRateLimited(opts.RateLimit.Tier)
			if c.debugEnabled(c.debug.LogRateLimit) {
				c.logger.Warn("rate limit exceeded", "callID", info.CallID, "dependency", dependency,
					"tier", string(opts.RateLimit.Tier), "retryAfter", decision.RetryAfter)
			}
			return nil, &CallError{
				Kind:       ErrorKindRateLimited,
				Dependency: dependency,
				Message:    "rate limit exceeded",
				RetryAfter: decision.RetryAfter,
				CallID:     info.CallID,
			}
		}
	}

	retry, timeout := c.resolveConfig(dependency, opts)

	next := CallFunc(func(ctx context.Context) (any, error) {
		return c.executeWithRetry(ctx, dependency, op, retry, timeout, info)
	})
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		inner := next
		next = func(ctx context.Context) (any, error) {
			return mw(ctx, info, inner)
		}
	}

	value, err := next(ctx)
	err = c.normalizeError(err, dependency, info)

	if err == nil && cacheKey != "" {
		var ttl time.Duration
		if opts.Cache != nil {
			ttl = opts.Cache.TTL
		}
		c.cache.Set(cacheKey, value, ttl)
		if c.debugEnabled(c.debug.LogCache) {
			c.logger.Debug("result cached", "callID", info.CallID, "dependency", dependency, "ttl", ttl)
		}
	}

	return value, err
}

// resolveConfig merges per-call overrides over per-dependency defaults over
// process defaults. Zero fields in an override keep the inherited value.
func (c *Client) resolveConfig(dependency string, opts CallOptions) (RetryConfig, TimeoutConfig) {
	base := c.defaults
	if dep, ok := c.depConfigs[dependency]; ok {
		fillDependencyConfig(&dep, c.defaults)
		base = dep
	}

	retry := base.Retry
	if opts.Retry != nil {
		override := *opts.Retry
		if override.MaxAttempts == 0 {
			override.MaxAttempts = retry.MaxAttempts
		}
		if override.BaseDelay == 0 {
			override.BaseDelay = retry.BaseDelay
		}
		if override.Multiplier == 0 {
			override.Multiplier = retry.Multiplier
		}
		if override.MaxDelay == 0 {
			override.MaxDelay = retry.MaxDelay
		}
		if override.Jitter == 0 {
			override.Jitter = retry.Jitter
		}
		if override.RetryablePredicate == nil {
			override.RetryablePredicate = retry.RetryablePredicate
		}
		retry = override
	}

	timeout := base.Timeout
	if opts.Timeout != nil {
		override := *opts.Timeout
		if override.Total == 0 {
			override.Total = timeout.Total
		}
		if override.PerAttempt == 0 {
			override.PerAttempt = timeout.PerAttempt
		}
		timeout = override
	}

	return retry, timeout
}

// normalizeError maps every failure onto the stable taxonomy so callers
// branch on kind, not on implementation detail.
func (c *Client) normalizeError(err error, dependency string, info *CallInfo) error {
	if err == nil {
		return nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		if callErr.Dependency == "" {
			callErr.Dependency = dependency
		}
		if callErr.CallID == "" {
			callErr.CallID = info.CallID
		}
		return err
	}

	// Caller cancellation passes through untouched; a bare deadline error
	// from middleware is still a timeout of this call.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{
			Kind:       ErrorKindTimeout,
			Dependency: dependency,
			Message:    "deadline exceeded",
			Cause:      err,
			CallID:     info.CallID,
		}
	}

	return &CallError{
		Kind:       ErrorKindUnderlying,
		Dependency: dependency,
		Message:    "dependency call failed",
		Cause:      err,
		CallID:     info.CallID,
	}
}

// finishCall records the final outcome and duration of the call.
func (c *Client) finishCall(info *CallInfo, start time.Time, err error) {
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		switch ErrorKind(err) {
		case ErrorKindTimeout:
			outcome = "timeout"
		case ErrorKindCircuitOpen:
			outcome = "circuit_open"
		case ErrorKindRateLimited:
			outcome = "rate_limited"
		case ErrorKindRetriesExhausted:
			outcome = "retries_exhausted"
		default:
			outcome = "error"
		}
		var callErr *CallError
		if errors.As(err, &callErr) && callErr.Duration == 0 {
			callErr.Duration = duration
		}
	}

	c.metrics.RecordCall(info.Dependency, outcome, duration)

	if c.debugEnabled(c.debug.LogCalls) {
		if err != nil {
			c.logger.Debug("call finished", "callID", info.CallID, "dependency", info.Dependency,
				"outcome", outcome, "duration", duration, "error", err.Error())
		} else {
			c.logger.Debug("call finished", "callID", info.CallID, "dependency", info.Dependency,
				"outcome", outcome, "duration", duration)
		}
	}
}

// GetMetrics returns a snapshot of counters, latency percentiles and breaker
// state, for the named dependencies or for every known key.
func (c *Client) GetMetrics(dependencies ...string) MetricsSnapshot {
	keys := dependencies
	if len(keys) == 0 {
		keys = c.snapshots.keys()
	}

	states := c.breakers.States()
	snap := MetricsSnapshot{Dependencies: make(map[string]DependencyMetrics, len(keys))}
	for _, key := range keys {
		m := c.snapshots.snapshot(key)
		if state, ok := states[key]; ok {
			m.BreakerState = state
			m.BreakerTransitions = c.breakers.Get(key).Transitions()
		}
		snap.Dependencies[key] = m
	}
	return snap
}

// Reset discards all per-key state: breakers, rate windows, in-flight
// entries, snapshots and cached results. Teardown hook for tests.
func (c *Client) Reset() {
	c.breakers.Reset()
	c.limiter.Reset()
	c.dedup.Reset()
	c.snapshots.reset()
	if c.cache != nil {
		c.cache.Purge()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag && c.logger != nil
}

// scopedKey prefixes caller-supplied keys with the dependency so identical
// keys for different dependencies never collide.
func scopedKey(dependency, key string) string {
	return dependency + "\x00" + key
}
