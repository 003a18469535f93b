package shield

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Error kinds form the stable taxonomy surfaced to callers regardless of the
// underlying transport.
const (
	// ErrorKindTimeout indicates the attempt or total deadline was exceeded.
	ErrorKindTimeout = "Timeout"
	// ErrorKindRetriesExhausted indicates all retry attempts failed; the last
	// underlying error is the cause.
	ErrorKindRetriesExhausted = "RetriesExhausted"
	// ErrorKindCircuitOpen indicates the breaker denied the call without
	// attempting it.
	ErrorKindCircuitOpen = "CircuitOpen"
	// ErrorKindRateLimited indicates the limiter denied the call; RetryAfter
	// carries the time until the window resets.
	ErrorKindRateLimited = "RateLimited"
	// ErrorKindUnderlying indicates the wrapped operation failed with a
	// non-retryable error of its own.
	ErrorKindUnderlying = "Underlying"
	// ErrorKindValidation indicates invalid client configuration.
	ErrorKindValidation = "Validation"
)

// Sentinel errors for branching with errors.Is.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("shield: circuit open")

	// ErrRateLimited is returned when a call is denied due to rate limiting.
	ErrRateLimited = errors.New("shield: rate limited")

	// ErrRetriesExhausted is returned when all retry attempts failed.
	ErrRetriesExhausted = errors.New("shield: retries exhausted")

	// ErrTimeout is returned when the attempt or total deadline was exceeded.
	ErrTimeout = errors.New("shield: deadline exceeded")
)

// CallError is the classified error surfaced by Call. Every surfaced error
// carries the dependency key and attempt count for observability.
type CallError struct {
	Kind       string
	Dependency string
	Message    string
	Cause      error
	CallID     string
	Attempts   int
	RetryAfter time.Duration
	Duration   time.Duration
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Dependency != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Dependency)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempts %d)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches sentinel errors by kind and other *CallError values by kind.
func (e *CallError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Kind == ErrorKindCircuitOpen
	case ErrRateLimited:
		return e.Kind == ErrorKindRateLimited
	case ErrRetriesExhausted:
		return e.Kind == ErrorKindRetriesExhausted
	case ErrTimeout:
		return e.Kind == ErrorKindTimeout
	}
	if targetErr, ok := target.(*CallError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// ErrorKind extracts the taxonomy kind from an error, or "" if the error did
// not originate from this layer.
func ErrorKind(err error) string {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return ""
}

// RetryAfterHint returns the limiter's retry-after hint carried by a
// rate-limited error.
func RetryAfterHint(err error) (time.Duration, bool) {
	var callErr *CallError
	if errors.As(err, &callErr) && callErr.Kind == ErrorKindRateLimited {
		return callErr.RetryAfter, true
	}
	return 0, false
}

// TransientError marks an error as retryable regardless of its concrete type.
// Dependency clients use Transient to flag failures the default predicate
// cannot classify on its own.
type TransientError struct {
	Err error
}

// Transient wraps err so DefaultRetryablePredicate treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// DefaultRetryablePredicate classifies failures for the retry loop: timeouts
// and network-level errors are retryable, deterministic errors from the
// dependency itself are not.
func DefaultRetryablePredicate(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Connections torn down mid-response.
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
