package shield

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestCallErrorMessageCarriesContext(t *testing.T) {
	err := &CallError{
		Kind:       ErrorKindRetriesExhausted,
		Dependency: "ai-provider",
		Message:    "all retry attempts failed",
		Attempts:   3,
		Cause:      errors.New("connection refused"),
	}

	msg := err.Error()
	for _, want := range []string{"RetriesExhausted", "ai-provider", "attempts 3", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestCallErrorMatchesSentinels(t *testing.T) {
	cases := []struct {
		kind     string
		sentinel error
	}{
		{ErrorKindCircuitOpen, ErrCircuitOpen},
		{ErrorKindRateLimited, ErrRateLimited},
		{ErrorKindRetriesExhausted, ErrRetriesExhausted},
		{ErrorKindTimeout, ErrTimeout},
	}

	for _, tc := range cases {
		err := &CallError{Kind: tc.kind}
		if !errors.Is(err, tc.sentinel) {
			t.Errorf("Expected kind %q to match its sentinel", tc.kind)
		}
		for _, other := range cases {
			if other.kind != tc.kind && errors.Is(err, other.sentinel) {
				t.Errorf("Expected kind %q not to match sentinel for %q", tc.kind, other.kind)
			}
		}
	}
}

func TestCallErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := &CallError{Kind: ErrorKindUnderlying, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Expected Unwrap to return the cause")
	}
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", &CallError{Kind: ErrorKindRateLimited})

	if ErrorKind(err) != ErrorKindRateLimited {
		t.Errorf("Expected kind extracted through wrapping, got %q", ErrorKind(err))
	}
	if ErrorKind(errors.New("plain")) != "" {
		t.Error("Expected empty kind for foreign errors")
	}
	if ErrorKind(nil) != "" {
		t.Error("Expected empty kind for nil")
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := &CallError{Kind: ErrorKindRateLimited, RetryAfter: 15 * time.Second}
	after, ok := RetryAfterHint(err)
	if !ok || after != 15*time.Second {
		t.Errorf("Expected hint 15s, got %v %v", after, ok)
	}

	if _, ok := RetryAfterHint(&CallError{Kind: ErrorKindTimeout}); ok {
		t.Error("Expected no hint on non-rate-limited errors")
	}
	if _, ok := RetryAfterHint(nil); ok {
		t.Error("Expected no hint on nil")
	}
}

func TestTransientWrapping(t *testing.T) {
	cause := errors.New("feed hiccup")
	err := Transient(cause)

	if !errors.Is(err, cause) {
		t.Error("Expected Transient to preserve the cause")
	}
	if Transient(nil) != nil {
		t.Error("Expected Transient(nil) to stay nil")
	}
}

func TestDefaultRetryablePredicate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient wrap", Transient(errors.New("hiccup")), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"caller cancellation", context.Canceled, false},
		{"plain error", errors.New("bad input"), false},
	}

	for _, tc := range cases {
		if got := DefaultRetryablePredicate(tc.err); got != tc.want {
			t.Errorf("%s: expected retryable=%v, got %v", tc.name, tc.want, got)
		}
	}
}
