package app

import (
	"errors"
	"sync"
)

// ErrNotReady is returned when capture is requested before the models have
// finished loading.
var ErrNotReady = errors.New("models are not loaded yet")

// State is the model readiness state.
type State int

const (
	// NotReady means models are missing, loading or failed to load.
	NotReady State = iota
	// Ready means both the detector and pose estimator are loaded.
	Ready
)

// String returns the state name.
func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "not_ready"
}

// Readiness tracks whether models are loaded. It moves from NotReady to
// Ready at most once; a failed load leaves it NotReady with the error kept.
type Readiness struct {
	mu    sync.RWMutex
	state State
	err   error
	ready chan struct{}
}

// NewReadiness creates a Readiness in the NotReady state.
func NewReadiness() *Readiness {
	return &Readiness{ready: make(chan struct{})}
}

// State returns the current state.
func (r *Readiness) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the last load error, if any.
func (r *Readiness) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done returns a channel closed once the state becomes Ready.
func (r *Readiness) Done() <-chan struct{} {
	return r.ready
}

// MarkReady moves to Ready and clears any earlier error. Repeated calls
// are no-ops.
func (r *Readiness) MarkReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Ready {
		return
	}
	r.state = Ready
	r.err = nil
	close(r.ready)
}

// MarkFailed records a load error. It has no effect once Ready.
func (r *Readiness) MarkFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Ready {
		return
	}
	r.err = err
}
