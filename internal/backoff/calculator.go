package backoff

import "time"

// Calculator binds a strategy to the Delay call sites in the executor so the
// strategy choice is made once per call, not per attempt.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a calculator with the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Delay computes the backoff for the given attempt.
func (c *Calculator) Delay(attempt int, base, max time.Duration, multiplier float64, jitter time.Duration) time.Duration {
	return c.strategy.Delay(attempt, base, max, multiplier, jitter)
}

// Exponential returns a calculator using exponential backoff with additive
// jitter, the default strategy.
func Exponential() *Calculator {
	return NewCalculator(ExponentialJitter{})
}

// Decorrelated returns a calculator using decorrelated jitter.
func Decorrelated() *Calculator {
	return NewCalculator(DecorrelatedJitter{})
}
