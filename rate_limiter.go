package shield

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// windowTableSize bounds the number of live (identifier, tier) windows.
// Identifiers are expected to be stable caller attributes (user/session IDs),
// so the LRU bound is a backstop against identifier churn growing the table
// without limit, not a correctness mechanism.
const windowTableSize = 4096

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time until the window resets. Only set on denial.
	RetryAfter time.Duration
}

// rateWindow tracks one fixed counting window for an (identifier, tier) pair.
type rateWindow struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// TierLimiter enforces fixed-window request ceilings per caller identity and
// tier. Fixed-window counting is deliberate: it is simpler than sliding
// windows and sufficient for a caller-side ceiling; the worst-case burst at a
// window boundary is bounded by 2x the ceiling.
type TierLimiter struct {
	windows *lru.Cache[string, *rateWindow]
	tiers   map[Tier]TierLimit

	now func() time.Time
}

// NewTierLimiter creates a limiter with the given tier ceilings. Nil tiers
// fall back to the documented defaults.
func NewTierLimiter(tiers map[Tier]TierLimit) *TierLimiter {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	windows, _ := lru.New[string, *rateWindow](windowTableSize)
	return &TierLimiter{
		windows: windows,
		tiers:   tiers,
		now:     time.Now,
	}
}

// CheckAndConsume admits or denies one request for the identifier under its
// tier ceiling. The first request for an unseen identifier creates its window
// lazily and is always admitted. Unknown tiers are limited as TierBasic.
func (l *TierLimiter) CheckAndConsume(identifier string, tier Tier) Decision {
	limit, ok := l.tiers[tier]
	if !ok {
		limit, ok = l.tiers[TierBasic]
		if !ok {
			// No ceilings configured at all: admit.
			return Decision{Allowed: true}
		}
	}

	key := string(tier) + ":" + identifier
	w, ok := l.windows.Get(key)
	if !ok {
		w = &rateWindow{start: l.now()}
		// Another goroutine may have created the window between Get and
		// PeekOrAdd; count against theirs in that case.
		if prev, existed, _ := l.windows.PeekOrAdd(key, w); existed {
			w = prev
		}
	}

	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.start) >= limit.Window {
		w.start = now
		w.count = 0
	}

	if w.count >= limit.Ceiling {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.start.Add(limit.Window).Sub(now),
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: limit.Ceiling - w.count,
	}
}

// Limit returns the configured ceiling for a tier.
func (l *TierLimiter) Limit(tier Tier) (TierLimit, bool) {
	limit, ok := l.tiers[tier]
	return limit, ok
}

// Reset discards all windows. Intended for tests.
func (l *TierLimiter) Reset() {
	l.windows.Purge()
}
