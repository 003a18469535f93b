package shield

import (
	"sync"
	"time"
)

// CircuitBreaker is the per-dependency state machine gating whether calls are
// attempted at all. The failure model is a consecutive-failure counter: any
// success in closed state resets it. Compound transitions (single half-open
// trial admission) are guarded by a per-breaker mutex.
type CircuitBreaker struct {
	config BreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failures       int
	trialSuccesses int
	trialInFlight  bool
	lastTransition time.Time
	transitions    uint64

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker, filling zero config fields
// with defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown == 0 {
		config.Cooldown = def.Cooldown
	}
	if config.TrialBudget == 0 {
		config.TrialBudget = def.TrialBudget
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may be attempted. In open state it transitions
// to half-open once the cooldown has elapsed and admits exactly one trial;
// concurrent callers are denied until that trial's outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastTransition) >= cb.config.Cooldown {
			cb.transitionLocked(StateHalfOpen)
			cb.trialSuccesses = 0
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	default:
		return false
	}
}

// RecordOutcome records the outcome of the attempt that ended a call. In
// closed state failures accumulate until the threshold opens the circuit; in
// half-open a failure reopens immediately and a success consumes trial budget
// until the circuit closes.
func (cb *CircuitBreaker) RecordOutcome(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateOpen:
		// Late results from attempts admitted before the circuit opened.
	case StateHalfOpen:
		cb.trialInFlight = false
		if !success {
			cb.trialSuccesses = 0
			cb.transitionLocked(StateOpen)
			return
		}
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.config.TrialBudget {
			cb.failures = 0
			cb.trialSuccesses = 0
			cb.transitionLocked(StateClosed)
		}
	}
}

// ReleaseTrial returns a half-open trial admission without recording an
// outcome, so the next caller can be admitted as the trial. Used when a call
// ends for reasons that say nothing about dependency health, such as caller
// cancellation.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

func (cb *CircuitBreaker) transitionLocked(next CircuitState) {
	cb.state = next
	cb.lastTransition = cb.now()
	cb.transitions++
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Transitions returns the number of state transitions since creation.
func (cb *CircuitBreaker) Transitions() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.transitions
}

// BreakerGroup partitions breaker state by dependency key. Entries are
// created lazily on first call for a key and live for the process lifetime.
type BreakerGroup struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults BreakerConfig
	configs  map[string]BreakerConfig
}

// NewBreakerGroup creates a breaker group with per-key config overrides.
func NewBreakerGroup(defaults BreakerConfig, configs map[string]BreakerConfig) *BreakerGroup {
	return &BreakerGroup{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
		configs:  configs,
	}
}

// Get returns the breaker for a dependency key, creating it on first use.
func (g *BreakerGroup) Get(key string) *CircuitBreaker {
	g.mu.RLock()
	cb, ok := g.breakers[key]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[key]; ok {
		return cb
	}
	config := g.defaults
	if override, ok := g.configs[key]; ok {
		config = override
	}
	cb = NewCircuitBreaker(config)
	g.breakers[key] = cb
	return cb
}

// States returns the current state of every known breaker.
func (g *BreakerGroup) States() map[string]CircuitState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	states := make(map[string]CircuitState, len(g.breakers))
	for key, cb := range g.breakers {
		states[key] = cb.State()
	}
	return states
}

// Reset discards all breaker state. Intended for tests.
func (g *BreakerGroup) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.breakers = make(map[string]*CircuitBreaker)
}
