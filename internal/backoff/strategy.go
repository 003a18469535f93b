// Package backoff provides the delay strategies used by the retry loop.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry. attempt is 1-based: the delay
// returned for attempt n is slept before attempt n+1.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier float64, jitter time.Duration) time.Duration
}

// ExponentialJitter grows the delay as base * multiplier^(attempt-1), clamps
// it to max, then adds a random component in [0, jitter). The jitter spreads
// retries from concurrent callers so they do not stampede in lockstep.
type ExponentialJitter struct{}

// Delay implements Strategy.
func (ExponentialJitter) Delay(attempt int, base, max time.Duration, multiplier float64, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Cap the exponent so the float math cannot overflow into negatives.
	if attempt > 31 {
		attempt = 31
	}

	delay := time.Duration(float64(base) * Pow(multiplier, attempt-1))
	if delay < 0 || delay > max {
		delay = max
	}
	if jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter)))
	}
	return delay
}

// DecorrelatedJitter implements AWS-style decorrelated jitter: a random delay
// between base and min(max, base * 3^(attempt-1)). The stateless form is used
// so concurrent calls need no shared previous-delay tracking.
type DecorrelatedJitter struct{}

// Delay implements Strategy.
func (DecorrelatedJitter) Delay(attempt int, base, max time.Duration, _ float64, _ time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 11 {
		attempt = 11
	}

	lower := float64(base)
	upper := lower * Pow(3.0, attempt-1)
	if upper > float64(max) || upper < lower {
		upper = float64(max)
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

// Pow computes base^exponent without pulling in math.Pow for small integer
// exponents.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
