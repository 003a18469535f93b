package shield

import (
	"fmt"
	"time"
)

// WithConfig applies a full startup configuration (typically from
// LoadConfig) as the client's defaults, per-dependency overrides and tier
// ceilings.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.defaults = cfg.Defaults
		if cfg.Dependencies != nil {
			c.depConfigs = cfg.Dependencies
		}
		if cfg.Tiers != nil {
			c.tiers = cfg.Tiers
		}
	}
}

// WithDependencyDefaults sets the process-wide defaults applied to every
// dependency without an override.
func WithDependencyDefaults(cfg DependencyConfig) Option {
	return func(c *Client) {
		c.defaults = cfg
	}
}

// WithDependencyConfig overrides retry/timeout/breaker settings for one
// dependency key. Zero fields inherit the process defaults.
func WithDependencyConfig(dependency string, cfg DependencyConfig) Option {
	return func(c *Client) {
		c.depConfigs[dependency] = cfg
	}
}

// WithTierLimits sets the rate ceilings per tier.
func WithTierLimits(tiers map[Tier]TierLimit) Option {
	return func(c *Client) {
		c.tiers = tiers
	}
}

// WithResultCache enables the TTL'd result cache for calls that declare
// themselves cacheable.
func WithResultCache(size int, defaultTTL time.Duration) Option {
	return func(c *Client) {
		c.cache = NewResultCache(size, defaultTTL)
	}
}

// WithMiddleware appends middleware around the call executor stage.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default per-stage flags.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		if config != nil {
			c.debug = config
		}
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithCallIDGenerator sets a custom function for generating call IDs.
func WithCallIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.CallIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error describing every problem found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, validateDependencyConfig("defaults", c.defaults)...)
	for name, dep := range c.depConfigs {
		merged := dep
		fillDependencyConfig(&merged, c.defaults)
		problems = append(problems, validateDependencyConfig(name, merged)...)
	}
	for tier, limit := range c.tiers {
		if limit.Ceiling <= 0 {
			problems = append(problems, fmt.Sprintf("tier %q: ceiling must be positive", tier))
		}
		if limit.Window <= 0 {
			problems = append(problems, fmt.Sprintf("tier %q: window must be positive", tier))
		}
	}
	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	if c.debug != nil && c.debug.Enabled {
		if c.debug.CallIDGen == nil {
			problems = append(problems, "debug CallIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
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
