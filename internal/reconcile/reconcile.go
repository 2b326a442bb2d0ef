// Package reconcile tracks optimistic state against in-flight request
// outcomes. Each key carries a monotonic sequence; only the outcome of the
// newest request for a key may settle it, so late responses from superseded
// requests cannot clobber fresher state.
package reconcile

import "sync"

type state[V any] struct {
	confirmed    V
	hasConfirmed bool
	pending      V
	hasPending   bool
	latest       uint64
}

// Tracker reconciles optimistic values with request outcomes, per key.
type Tracker[K comparable, V any] struct {
	mu     sync.Mutex
	states map[K]*state[V]
	seq    uint64
}

func NewTracker[K comparable, V any]() *Tracker[K, V] {
	return &Tracker[K, V]{states: make(map[K]*state[V])}
}

// Apply records value as the optimistic state for key and returns the
// sequence token identifying this request. A newer Apply supersedes any
// in-flight older one.
func (t *Tracker[K, V]) Apply(key K, value V) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	st, ok := t.states[key]
	if !ok {
		st = &state[V]{}
		t.states[key] = st
	}
	st.pending = value
	st.hasPending = true
	st.latest = t.seq
	return t.seq
}

// Confirm settles the request identified by seq with the authoritative value.
// Outcomes of superseded requests are ignored.
func (t *Tracker[K, V]) Confirm(key K, seq uint64, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok || seq != st.latest {
		return false
	}
	st.confirmed = value
	st.hasConfirmed = true
	var zero V
	st.pending = zero
	st.hasPending = false
	return true
}

// Fail rolls the key back to its last confirmed value. Ignored when a newer
// request has superseded seq; that request's outcome will settle the key.
func (t *Tracker[K, V]) Fail(key K, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok || seq != st.latest {
		return false
	}
	var zero V
	st.pending = zero
	st.hasPending = false
	if !st.hasConfirmed {
		delete(t.states, key)
	}
	return true
}

// Get returns the current view of key: the optimistic value while a request
// is in flight, the confirmed value otherwise.
func (t *Tracker[K, V]) Get(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok {
		var zero V
		return zero, false
	}
	if st.hasPending {
		return st.pending, true
	}
	if st.hasConfirmed {
		return st.confirmed, true
	}
	var zero V
	return zero, false
}

// Pending reports whether key has a request in flight.
func (t *Tracker[K, V]) Pending(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[key]
	return ok && st.hasPending
}
