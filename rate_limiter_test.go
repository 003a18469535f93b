package shield

import (
	"sync"
	"testing"
	"time"
)

// The limiter uses fixed-window counting: a window starts on the first
// request for an (identifier, tier) pair and resets once its duration
// elapses. These tests document that choice.

func testLimiter(tiers map[Tier]TierLimit) (*TierLimiter, *time.Time) {
	l := NewTierLimiter(tiers)
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestTierLimiterCeilingEnforced(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 5, Window: time.Minute}})

	for i := 0; i < 5; i++ {
		d := l.CheckAndConsume("user-1", TierBasic)
		if !d.Allowed {
			t.Fatalf("Expected request %d admitted", i+1)
		}
		if d.Remaining != 5-(i+1) {
			t.Errorf("Expected remaining=%d after request %d, got %d", 5-(i+1), i+1, d.Remaining)
		}
	}

	d := l.CheckAndConsume("user-1", TierBasic)
	if d.Allowed {
		t.Fatal("Expected sixth request denied within the window")
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("Expected retryAfter=60s at window start, got %v", d.RetryAfter)
	}
}

func TestTierLimiterRetryAfterShrinks(t *testing.T) {
	l, now := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 1, Window: time.Minute}})

	l.CheckAndConsume("user-1", TierBasic)

	*now = now.Add(45 * time.Second)
	d := l.CheckAndConsume("user-1", TierBasic)
	if d.Allowed {
		t.Fatal("Expected denial within the window")
	}
	if d.RetryAfter != 15*time.Second {
		t.Errorf("Expected retryAfter=15s, got %v", d.RetryAfter)
	}
}

func TestTierLimiterWindowRollover(t *testing.T) {
	l, now := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 2, Window: time.Minute}})

	l.CheckAndConsume("user-1", TierBasic)
	l.CheckAndConsume("user-1", TierBasic)
	if d := l.CheckAndConsume("user-1", TierBasic); d.Allowed {
		t.Fatal("Expected denial at ceiling")
	}

	*now = now.Add(time.Minute)
	d := l.CheckAndConsume("user-1", TierBasic)
	if !d.Allowed {
		t.Fatal("Expected admission after window rollover")
	}
	if d.Remaining != 1 {
		t.Errorf("Expected remaining=1 in fresh window, got %d", d.Remaining)
	}
}

func TestTierLimiterTiersHaveDistinctCeilings(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{
		TierBasic:   {Ceiling: 1, Window: time.Minute},
		TierPremium: {Ceiling: 3, Window: time.Minute},
	})

	l.CheckAndConsume("user-1", TierBasic)
	if d := l.CheckAndConsume("user-1", TierBasic); d.Allowed {
		t.Error("Expected basic denied past its ceiling")
	}

	// The same identifier under premium counts against a separate window.
	for i := 0; i < 3; i++ {
		if d := l.CheckAndConsume("user-1", TierPremium); !d.Allowed {
			t.Fatalf("Expected premium request %d admitted", i+1)
		}
	}
	if d := l.CheckAndConsume("user-1", TierPremium); d.Allowed {
		t.Error("Expected premium denied past its ceiling")
	}
}

func TestTierLimiterIdentifiersIndependent(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 1, Window: time.Minute}})

	l.CheckAndConsume("user-1", TierBasic)
	if d := l.CheckAndConsume("user-2", TierBasic); !d.Allowed {
		t.Error("Expected a fresh identifier to be admitted")
	}
}

func TestTierLimiterUnknownTierLimitedAsBasic(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 1, Window: time.Minute}})

	if d := l.CheckAndConsume("user-1", Tier("gold")); !d.Allowed {
		t.Fatal("Expected first request under unknown tier admitted")
	}
	if d := l.CheckAndConsume("user-1", Tier("gold")); d.Allowed {
		t.Error("Expected unknown tier capped at the basic ceiling")
	}
}

func TestTierLimiterConcurrentConsumptionNeverExceedsCeiling(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 50, Window: time.Minute}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := l.CheckAndConsume("user-1", TierBasic); d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 50 {
		t.Errorf("Expected exactly 50 admitted, got %d", admitted)
	}
}

func TestTierLimiterReset(t *testing.T) {
	l, _ := testLimiter(map[Tier]TierLimit{TierBasic: {Ceiling: 1, Window: time.Minute}})

	l.CheckAndConsume("user-1", TierBasic)
	l.Reset()

	if d := l.CheckAndConsume("user-1", TierBasic); !d.Allowed {
		t.Error("Expected admission after reset")
	}
}
