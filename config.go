package shield

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// RetryConfig bounds the retry loop for a call. Zero fields fall back to the
// documented defaults at execution time.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first one.
	MaxAttempts int `koanf:"max_attempts"`
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration `koanf:"base_delay"`
	// Multiplier grows the delay per attempt: base * multiplier^(n-1).
	Multiplier float64 `koanf:"multiplier"`
	// MaxDelay clamps the computed delay before jitter is added.
	MaxDelay time.Duration `koanf:"max_delay"`
	// Jitter is the upper bound of the random component added to each delay.
	Jitter time.Duration `koanf:"jitter"`
	// Decorrelated selects AWS-style decorrelated jitter instead of
	// exponential backoff + additive jitter.
	Decorrelated bool `koanf:"decorrelated"`
	// RetryablePredicate overrides DefaultRetryablePredicate for this call.
	RetryablePredicate func(error) bool `koanf:"-"`
}

// TimeoutConfig bounds a call in wall-clock time.
type TimeoutConfig struct {
	// Total is the deadline for the whole call including retries and backoff.
	Total time.Duration `koanf:"total"`
	// PerAttempt, when set, bounds each individual attempt.
	PerAttempt time.Duration `koanf:"per_attempt"`
}

// BreakerConfig configures the per-dependency circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int `koanf:"failure_threshold"`
	// Cooldown is how long the circuit stays open before a half-open trial.
	Cooldown time.Duration `koanf:"cooldown"`
	// TrialBudget is the number of successful half-open trials required to close.
	TrialBudget int `koanf:"trial_budget"`
}

// TierLimit is the rate ceiling for one tier.
type TierLimit struct {
	// Ceiling is the maximum number of admitted calls per window.
	Ceiling int `koanf:"ceiling"`
	// Window is the fixed counting window duration.
	Window time.Duration `koanf:"window"`
}

// DependencyConfig holds the per-dependency defaults applied when a call does
// not override them.
type DependencyConfig struct {
	Retry   RetryConfig   `koanf:"retry"`
	Timeout TimeoutConfig `koanf:"timeout"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// Config is the static startup configuration surface: process-wide defaults,
// per-dependency overrides and tier ceilings.
type Config struct {
	Defaults     DependencyConfig            `koanf:"defaults"`
	Dependencies map[string]DependencyConfig `koanf:"dependencies"`
	Tiers        map[Tier]TierLimit          `koanf:"tiers"`
}

// CallOptions carries per-call overrides and the opt-in flags for dedup,
// rate limiting and caching. The zero value uses per-dependency defaults with
// everything optional switched off.
type CallOptions struct {
	Retry     *RetryConfig
	Timeout   *TimeoutConfig
	RateLimit *RateLimitOptions
	Dedup     *DedupOptions
	Cache     *CacheOptions
}

// RateLimitOptions identifies the caller for tiered rate limiting. The
// identifier must be a stable caller attribute (user or session ID), not a
// freely caller-supplied string, or the per-identifier windows are trivially
// evaded by identifier churn.
type RateLimitOptions struct {
	Identifier string
	Tier       Tier
}

// DedupOptions enables collapsing of concurrent identical calls. Only
// idempotent/read operations are safe to dedupe; mutating calls must never
// set Enabled.
type DedupOptions struct {
	Key     string
	Enabled bool
}

// CacheOptions enables the TTL'd result cache for an idempotent read. A zero
// TTL uses the cache's default.
type CacheOptions struct {
	Key     string
	TTL     time.Duration
	Enabled bool
}

// DefaultRetryConfig returns the documented retry defaults: 3 attempts,
// 100ms base delay, 2.0 multiplier, 10s clamp, 100ms jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
		Jitter:      100 * time.Millisecond,
	}
}

// DefaultTimeoutConfig returns the documented timeout defaults: 30s total,
// no per-attempt deadline.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Total: 30 * time.Second,
	}
}

// DefaultBreakerConfig returns the documented breaker defaults: 5 consecutive
// failures open the circuit, 60s cooldown, 2 successful trials close it.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
		TrialBudget:      2,
	}
}

// DefaultTiers returns the documented tier ceilings per 60-second window.
func DefaultTiers() map[Tier]TierLimit {
	return map[Tier]TierLimit{
		TierBasic:      {Ceiling: 60, Window: time.Minute},
		TierPremium:    {Ceiling: 120, Window: time.Minute},
		TierEnterprise: {Ceiling: 300, Window: time.Minute},
	}
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		Defaults: DependencyConfig{
			Retry:   DefaultRetryConfig(),
			Timeout: DefaultTimeoutConfig(),
			Breaker: DefaultBreakerConfig(),
		},
		Dependencies: map[string]DependencyConfig{},
		Tiers:        DefaultTiers(),
	}
}

// LoadConfig parses a YAML configuration document and merges it over the
// defaults. Unset fields keep their default values.
func LoadConfig(data []byte) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("shield: parse config: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("shield: unmarshal config: %w", err)
	}

	cfg.fillZeroFields()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillZeroFields backfills defaults into sections the document omitted so a
// partial override (e.g. only breaker thresholds) keeps sane retry/timeout
// values.
func (c *Config) fillZeroFields() {
	def := DefaultConfig()
	fillDependencyConfig(&c.Defaults, def.Defaults)
	for name, dep := range c.Dependencies {
		fillDependencyConfig(&dep, c.Defaults)
		c.Dependencies[name] = dep
	}
	if c.Tiers == nil {
		c.Tiers = def.Tiers
	}
	for tier, limit := range c.Tiers {
		if limit.Window <= 0 {
			limit.Window = time.Minute
			c.Tiers[tier] = limit
		}
	}
}

func fillDependencyConfig(dst *DependencyConfig, base DependencyConfig) {
	if dst.Retry.MaxAttempts == 0 {
		dst.Retry.MaxAttempts = base.Retry.MaxAttempts
	}
	if dst.Retry.BaseDelay == 0 {
		dst.Retry.BaseDelay = base.Retry.BaseDelay
	}
	if dst.Retry.Multiplier == 0 {
		dst.Retry.Multiplier = base.Retry.Multiplier
	}
	if dst.Retry.MaxDelay == 0 {
		dst.Retry.MaxDelay = base.Retry.MaxDelay
	}
	if dst.Retry.Jitter == 0 {
		dst.Retry.Jitter = base.Retry.Jitter
	}
	if dst.Timeout.Total == 0 {
		dst.Timeout.Total = base.Timeout.Total
	}
	if dst.Timeout.PerAttempt == 0 {
		dst.Timeout.PerAttempt = base.Timeout.PerAttempt
	}
	if dst.Breaker.FailureThreshold == 0 {
		dst.Breaker.FailureThreshold = base.Breaker.FailureThreshold
	}
	if dst.Breaker.Cooldown == 0 {
		dst.Breaker.Cooldown = base.Breaker.Cooldown
	}
	if dst.Breaker.TrialBudget == 0 {
		dst.Breaker.TrialBudget = base.Breaker.TrialBudget
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	var problems []string

	problems = append(problems, validateDependencyConfig("defaults", c.Defaults)...)
	for name, dep := range c.Dependencies {
		problems = append(problems, validateDependencyConfig(name, dep)...)
	}
	for tier, limit := range c.Tiers {
		if limit.Ceiling <= 0 {
			problems = append(problems, fmt.Sprintf("tier %q: ceiling must be positive", tier))
		}
		if limit.Window <= 0 {
			problems = append(problems, fmt.Sprintf("tier %q: window must be positive", tier))
		}
	}

	if len(problems) > 0 {
		return &CallError{
			Kind:    ErrorKindValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func validateDependencyConfig(name string, dep DependencyConfig) []string {
	var problems []string

	if dep.Retry.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("%s: retry max_attempts must be >= 1", name))
	}
	if dep.Retry.BaseDelay <= 0 {
		problems = append(problems, fmt.Sprintf("%s: retry base_delay must be positive", name))
	}
	if dep.Retry.Multiplier < 1 {
		problems = append(problems, fmt.Sprintf("%s: retry multiplier must be >= 1", name))
	}
	if dep.Retry.MaxDelay < dep.Retry.BaseDelay {
		problems = append(problems, fmt.Sprintf("%s: retry max_delay must be >= base_delay", name))
	}
	if dep.Retry.Jitter < 0 {
		problems = append(problems, fmt.Sprintf("%s: retry jitter must be non-negative", name))
	}
	if dep.Timeout.Total <= 0 {
		problems = append(problems, fmt.Sprintf("%s: timeout total must be positive", name))
	}
	if dep.Timeout.PerAttempt < 0 {
		problems = append(problems, fmt.Sprintf("%s: timeout per_attempt must be non-negative", name))
	}
	if dep.Breaker.FailureThreshold <= 0 {
		problems = append(problems, fmt.Sprintf("%s: breaker failure_threshold must be positive", name))
	}
	if dep.Breaker.Cooldown <= 0 {
		problems = append(problems, fmt.Sprintf("%s: breaker cooldown must be positive", name))
	}
	if dep.Breaker.TrialBudget <= 0 {
		problems = append(problems, fmt.Sprintf("%s: breaker trial_budget must be positive", name))
	}

	return problems
}
