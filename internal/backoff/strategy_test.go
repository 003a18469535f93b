package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	s := ExponentialJitter{}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		got := s.Delay(tc.attempt, 100*time.Millisecond, 10*time.Second, 2.0, 0)
		if got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialClampedToMax(t *testing.T) {
	s := ExponentialJitter{}

	got := s.Delay(10, 100*time.Millisecond, time.Second, 2.0, 0)
	if got != time.Second {
		t.Errorf("Expected clamp to 1s, got %v", got)
	}
}

func TestExponentialJitterWithinBounds(t *testing.T) {
	s := ExponentialJitter{}

	for i := 0; i < 100; i++ {
		got := s.Delay(1, 100*time.Millisecond, 10*time.Second, 2.0, 50*time.Millisecond)
		if got < 100*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("Expected delay in [100ms, 150ms), got %v", got)
		}
	}
}

func TestExponentialLargeAttemptDoesNotOverflow(t *testing.T) {
	s := ExponentialJitter{}

	got := s.Delay(1000, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	if got != 10*time.Second {
		t.Errorf("Expected clamp for a huge attempt number, got %v", got)
	}
	if got < 0 {
		t.Errorf("Expected a non-negative delay, got %v", got)
	}
}

func TestExponentialAttemptBelowOne(t *testing.T) {
	s := ExponentialJitter{}

	got := s.Delay(0, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Expected base delay for attempt 0, got %v", got)
	}
}

func TestDecorrelatedWithinBounds(t *testing.T) {
	s := DecorrelatedJitter{}
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for attempt := 1; attempt <= 8; attempt++ {
		upper := time.Duration(float64(base) * Pow(3.0, attempt-1))
		if upper > max {
			upper = max
		}
		for i := 0; i < 50; i++ {
			got := s.Delay(attempt, base, max, 0, 0)
			if got < base || got > upper {
				t.Fatalf("attempt %d: expected delay in [%v, %v], got %v", attempt, base, upper, got)
			}
		}
	}
}

func TestDecorrelatedNeverExceedsMax(t *testing.T) {
	s := DecorrelatedJitter{}

	for i := 0; i < 100; i++ {
		got := s.Delay(50, 100*time.Millisecond, time.Second, 0, 0)
		if got > time.Second {
			t.Fatalf("Expected delay capped at 1s, got %v", got)
		}
	}
}

func TestCalculatorDelegates(t *testing.T) {
	calc := Exponential()
	got := calc.Delay(2, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	if got != 200*time.Millisecond {
		t.Errorf("Expected 200ms from the exponential calculator, got %v", got)
	}

	calc = Decorrelated()
	got = calc.Delay(1, 100*time.Millisecond, 10*time.Second, 0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Expected base delay for the first decorrelated attempt, got %v", got)
	}
}

func TestPow(t *testing.T) {
	cases := []struct {
		base     float64
		exponent int
		want     float64
	}{
		{2.0, 0, 1.0},
		{2.0, 1, 2.0},
		{2.0, 5, 32.0},
		{3.0, 3, 27.0},
		{1.5, 2, 2.25},
	}
	for _, tc := range cases {
		if got := Pow(tc.base, tc.exponent); got != tc.want {
			t.Errorf("Pow(%v, %d): expected %v, got %v", tc.base, tc.exponent, tc.want, got)
		}
	}
}
