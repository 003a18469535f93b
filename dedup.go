package shield

import (
	"context"
	"sync"
)

// InFlightEntry is one in-progress execution shared between an owner and any
// number of waiters. All waiters observe the same resolved outcome.
type InFlightEntry struct {
	done chan struct{}

	mu      sync.Mutex
	result  any
	err     error
	waiters int
}

// DeduplicationTracker collapses concurrent identical calls into a single
// execution. At most one live entry exists per key at any instant; the entry
// is removed the moment its call completes, so callers arriving after
// completion start a fresh call.
type DeduplicationTracker struct {
	mu      sync.Mutex
	entries map[string]*InFlightEntry
}

// NewDeduplicationTracker returns an empty in-memory tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{
		entries: make(map[string]*InFlightEntry),
	}
}

// GetOrCreate returns the entry for key. The second return value is true when
// the caller became the owner and must execute the call and Complete the key;
// false means the caller attached as a waiter.
func (dt *DeduplicationTracker) GetOrCreate(key string) (*InFlightEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, ok := dt.entries[key]; ok {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &InFlightEntry{
		done: make(chan struct{}),
	}
	dt.entries[key] = entry
	return entry, true
}

// Complete resolves the entry for key with the shared outcome, releases every
// waiter and removes the entry. Waiters that already hold the entry pointer
// still observe the outcome through the closed channel.
func (dt *DeduplicationTracker) Complete(key string, result any, err error) {
	dt.mu.Lock()
	entry, ok := dt.entries[key]
	delete(dt.entries, key)
	dt.mu.Unlock()

	if !ok {
		return
	}

	entry.mu.Lock()
	entry.result = result
	entry.err = err
	entry.mu.Unlock()
	close(entry.done)
}

// Wait blocks until the owning call completes or ctx is cancelled. A waiter
// that cancels detaches on its own; the owner call keeps running and other
// waiters are unaffected.
func (entry *InFlightEntry) Wait(ctx context.Context) (any, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		result, err := entry.result, entry.err
		entry.mu.Unlock()
		return result, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waiters returns the number of callers attached to the entry beyond the owner.
func (entry *InFlightEntry) Waiters() int {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.waiters
}

// Len returns the number of live in-flight entries.
func (dt *DeduplicationTracker) Len() int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return len(dt.entries)
}

// Reset discards all in-flight entries without resolving them. Intended for
// tests only; live waiters on discarded entries would block forever.
func (dt *DeduplicationTracker) Reset() {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.entries = make(map[string]*InFlightEntry)
}
