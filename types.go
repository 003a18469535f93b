package shield

import "context"

// Operation is a single unit of outbound work routed through the resilience
// layer. The operation must honor ctx cancellation: when its deadline expires
// the attempt is abandoned and any late result is discarded.
type Operation func(ctx context.Context) (any, error)

// CallFunc executes the remaining stages of the pipeline for a call.
type CallFunc func(ctx context.Context) (any, error)

// Middleware wraps execution of the call executor stage. Middleware run in
// registration order, each receiving the next stage to invoke.
type Middleware func(ctx context.Context, info *CallInfo, next CallFunc) (any, error)

// CallInfo describes the call currently flowing through the pipeline.
type CallInfo struct {
	Dependency string
	CallID     string
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs and metrics.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Tier classifies a caller identity for rate limiting. Ceilings per tier are
// configured on the client; unknown tiers fall back to TierBasic.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Option represents a configuration option for New.
type Option func(*Client)
