package shield

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports Prometheus metrics for the call lifecycle and the
// reliability layers. It is safe for concurrent use. All methods are no-ops
// on a nil receiver so instrumentation points need no guards.
type MetricsCollector struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	rateLimitedTotal *prometheus.CounterVec

	dedupHitsTotal *prometheus.CounterVec
	cacheHitsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_calls_total",
				Help: "Total number of calls routed through the resilience layer",
			},
			[]string{"dependency", "outcome"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shield_call_duration_seconds",
				Help:    "Duration of calls including retries and backoff",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dependency"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shield_calls_in_flight",
				Help: "Number of calls currently in flight",
			},
			[]string{"dependency"},
		),
		attemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_attempts_total",
				Help: "Total number of individual call attempts",
			},
			[]string{"dependency", "outcome"},
		),
		attemptDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shield_attempt_duration_seconds",
				Help:    "Duration of individual call attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dependency"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"dependency", "attempt"},
		),
		breakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shield_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"dependency"},
		),
		rateLimitedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_rate_limited_total",
				Help: "Total number of calls denied by the rate limiter",
			},
			[]string{"tier"},
		),
		dedupHitsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_deduplication_hits_total",
				Help: "Total number of calls collapsed onto an in-flight execution",
			},
			[]string{"dependency"},
		),
		cacheHitsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_cache_hits_total",
				Help: "Total number of calls served from the result cache",
			},
			[]string{"dependency"},
		),
		registry: registry,
	}
}

// RecordCall records the final outcome and duration of a call.
func (mc *MetricsCollector) RecordCall(dependency, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.callsTotal.WithLabelValues(dependency, outcome).Inc()
	mc.callDuration.WithLabelValues(dependency).Observe(duration.Seconds())
}

// RecordCallStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordCallStart(dependency string) {
	if mc == nil {
		return
	}
	mc.callsInFlight.WithLabelValues(dependency).Inc()
}

// RecordCallEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordCallEnd(dependency string) {
	if mc == nil {
		return
	}
	mc.callsInFlight.WithLabelValues(dependency).Dec()
}

// RecordAttempt records one attempt's outcome and latency.
func (mc *MetricsCollector) RecordAttempt(dependency, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.attemptsTotal.WithLabelValues(dependency, outcome).Inc()
	mc.attemptDuration.WithLabelValues(dependency).Observe(duration.Seconds())
}

// RecordRetry increments the retry counter for an attempt number.
func (mc *MetricsCollector) RecordRetry(dependency string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(dependency, strconv.Itoa(attempt)).Inc()
}

// RecordBreakerState sets the breaker state gauge for a dependency.
func (mc *MetricsCollector) RecordBreakerState(dependency string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.breakerState.WithLabelValues(dependency).Set(float64(state))
}

// RecordRateLimited increments the rate-limit denial counter for a tier.
func (mc *MetricsCollector) RecordRateLimited(tier Tier) {
	if mc == nil {
		return
	}
	mc.rateLimitedTotal.WithLabelValues(string(tier)).Inc()
}

// RecordDedupHit increments the deduplication hit counter.
func (mc *MetricsCollector) RecordDedupHit(dependency string) {
	if mc == nil {
		return
	}
	mc.dedupHitsTotal.WithLabelValues(dependency).Inc()
}

// RecordCacheHit increments the result cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(dependency string) {
	if mc == nil {
		return
	}
	mc.cacheHitsTotal.WithLabelValues(dependency).Inc()
}
