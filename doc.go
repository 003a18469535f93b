// Package shield is the outbound call resilience layer for QuanForge: every
// network-facing call (database, AI provider, market-data feeds) is routed
// through a single wrapping entry point built from composable reliability
// primitives:
//
//   - Retries with exponential backoff + jitter, bounded by attempt and time budgets
//   - Per-dependency circuit breaker (closed / open / half-open states)
//   - Tiered rate limiting (fixed window per caller identity)
//   - De-duplication of concurrent identical in-flight calls
//   - Optional TTL'd result cache for idempotent reads
//   - Middleware chain for cross-cutting concerns (auth, tracing, etc.)
//   - Prometheus metrics plus in-process per-dependency snapshots
//
// Design goals:
//   - Small surface area – one Call entry point, functional options configure everything
//   - Per-dependency-key state, no cross-key contention on a single global lock
//   - Safe concurrent use of a single *Client instance
//   - All state in-memory and process-scoped; Reset provides a test teardown hook
//
// Typical usage:
//
//	client := shield.New(
//	    shield.WithMetrics(),
//	    shield.WithDependencyConfig("market-feed", shield.DependencyConfig{
//	        Breaker: shield.BreakerConfig{FailureThreshold: 3, Cooldown: 5 * time.Second},
//	    }),
//	)
//	quote, err := client.Call(ctx, "market-feed", fetchQuote, shield.CallOptions{
//	    Dedup: &shield.DedupOptions{Key: "EURUSD", Enabled: true},
//	})
//
// Failures surface as *CallError values with a stable kind (Timeout,
// RetriesExhausted, CircuitOpen, RateLimited, Underlying) so callers branch
// on kind, not on transport detail. The layer wraps whatever transport the
// operation uses internally; it never parses or owns the payload.
package shield
