package shield

import (
	"sort"
	"sync"
	"time"
)

// latencySampleSize bounds the per-dependency latency ring used for
// percentile snapshots.
const latencySampleSize = 1024

type attemptOutcome int

const (
	attemptSuccess attemptOutcome = iota
	attemptFailure
	attemptTimeout
)

// DependencyMetrics is a point-in-time aggregate for one dependency key.
type DependencyMetrics struct {
	Success     uint64
	Failures    uint64
	Timeouts    uint64
	Retries     uint64
	RateLimited uint64
	CircuitOpen uint64
	DedupHits   uint64
	CacheHits   uint64

	P50 time.Duration
	P95 time.Duration
	P99 time.Duration

	BreakerState       CircuitState
	BreakerTransitions uint64
}

// MetricsSnapshot is the result of GetMetrics: per-dependency aggregates,
// copied so readers never block writers and repeated reads without
// intervening calls are identical.
type MetricsSnapshot struct {
	Dependencies map[string]DependencyMetrics
}

// depStats accumulates counters and a bounded latency ring for one key.
// Writes take the per-key mutex only; keys do not contend with each other.
type depStats struct {
	mu sync.Mutex

	success     uint64
	failures    uint64
	timeouts    uint64
	retries     uint64
	rateLimited uint64
	circuitOpen uint64
	dedupHits   uint64
	cacheHits   uint64

	latencies []time.Duration
	next      int
	total     int
}

// snapshotRegistry partitions in-process metrics state by dependency key.
// Entries are created lazily and live for the process lifetime.
type snapshotRegistry struct {
	mu    sync.RWMutex
	stats map[string]*depStats
}

func newSnapshotRegistry() *snapshotRegistry {
	return &snapshotRegistry{
		stats: make(map[string]*depStats),
	}
}

func (r *snapshotRegistry) get(dep string) *depStats {
	r.mu.RLock()
	s, ok := r.stats[dep]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stats[dep]; ok {
		return s
	}
	s = &depStats{latencies: make([]time.Duration, latencySampleSize)}
	r.stats[dep] = s
	return s
}

func (r *snapshotRegistry) recordAttempt(dep string, outcome attemptOutcome, latency time.Duration) {
	s := r.get(dep)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch outcome {
	case attemptSuccess:
		s.success++
	case attemptFailure:
		s.failures++
	case attemptTimeout:
		s.timeouts++
	}

	s.latencies[s.next] = latency
	s.next = (s.next + 1) % latencySampleSize
	if s.total < latencySampleSize {
		s.total++
	}
}

func (r *snapshotRegistry) recordRetry(dep string) {
	s := r.get(dep)
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

func (r *snapshotRegistry) recordRateLimited(dep string) {
	s := r.get(dep)
	s.mu.Lock()
	s.rateLimited++
	s.mu.Unlock()
}

func (r *snapshotRegistry) recordCircuitOpen(dep string) {
	s := r.get(dep)
	s.mu.Lock()
	s.circuitOpen++
	s.mu.Unlock()
}

func (r *snapshotRegistry) recordDedupHit(dep string) {
	s := r.get(dep)
	s.mu.Lock()
	s.dedupHits++
	s.mu.Unlock()
}

func (r *snapshotRegistry) recordCacheHit(dep string) {
	s := r.get(dep)
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// snapshot copies one key's aggregates and computes latency percentiles from
// the sample ring. Reads are read-only: an unknown key yields zero metrics
// and does not create an entry.
func (r *snapshotRegistry) snapshot(dep string) DependencyMetrics {
	r.mu.RLock()
	s, ok := r.stats[dep]
	r.mu.RUnlock()
	if !ok {
		return DependencyMetrics{}
	}

	s.mu.Lock()
	m := DependencyMetrics{
		Success:     s.success,
		Failures:    s.failures,
		Timeouts:    s.timeouts,
		Retries:     s.retries,
		RateLimited: s.rateLimited,
		CircuitOpen: s.circuitOpen,
		DedupHits:   s.dedupHits,
		CacheHits:   s.cacheHits,
	}
	sample := make([]time.Duration, s.total)
	copy(sample, s.latencies[:s.total])
	s.mu.Unlock()

	if len(sample) > 0 {
		sort.Slice(sample, func(i, j int) bool { return sample[i] < sample[j] })
		m.P50 = percentile(sample, 0.50)
		m.P95 = percentile(sample, 0.95)
		m.P99 = percentile(sample, 0.99)
	}
	return m
}

func (r *snapshotRegistry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.stats))
	for key := range r.stats {
		keys = append(keys, key)
	}
	return keys
}

func (r *snapshotRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = make(map[string]*depStats)
}

// percentile returns the nearest-rank percentile from a sorted sample.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
