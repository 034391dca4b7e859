package raft

import (
	"sync"
	"time"
)

// CancelFunc cancels a previously scheduled timer callback. Cancellation is
// idempotent — calling it twice, or after the timer already fired, is safe.
type CancelFunc func()

// Timer is the injected timeout abstraction the node depends on: it resets
// or cancels a timer, never blocks on one, and never learns about the
// passage of time except through a fired callback. Production code uses
// RealTimer; tests use internal/simtime.VirtualClock so that identical
// input sequences (including timer firings) produce byte-identical output.
type Timer interface {
	// Reset schedules fn to run after d, cancelling any previously
	// scheduled callback on this Timer first. It returns a handle to
	// cancel the new callback.
	Reset(d time.Duration, fn func()) CancelFunc
}

// RealTimer is a Timer backed by time.AfterFunc.
type RealTimer struct {
	mu     sync.Mutex
	cancel CancelFunc
}

// NewRealTimer returns a Timer suitable for production use.
func NewRealTimer() *RealTimer {
	return &RealTimer{}
}

// Reset implements Timer.
func (t *RealTimer) Reset(d time.Duration, fn func()) CancelFunc {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	timer := time.AfterFunc(d, fn)
	var once sync.Once
	cancel := func() {
		once.Do(func() { timer.Stop() })
	}
	t.cancel = cancel
	return cancel
}
