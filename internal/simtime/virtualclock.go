// Package simtime supplies a deterministic alternative to wall-clock timers
// for tests: a VirtualClock hands out raft.Timer handles (NewHandle) that
// never consult the real clock. Advancing it is the only way a scheduled callback fires,
// which makes election timeouts and heartbeats reproducible across runs.
package simtime

import (
	"sort"
	"sync"
	"time"

	"github.com/rlong/raftkv/internal/raft"
)

type scheduledCallback struct {
	id       int64
	deadline time.Duration
	fn       func()
	live     bool
}

// VirtualClock is a manually-advanced clock. It is not itself a
// raft.Timer; a single VirtualClock backs any number of raft.Timer fields
// through NewHandle, one handle per field — every handle Resets/Cancels
// independently while sharing the same notion of "now".
type VirtualClock struct {
	mu       sync.Mutex
	now      time.Duration
	nextID   int64
	pending  map[int64]*scheduledCallback
}

// NewVirtualClock returns a VirtualClock starting at time zero.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{pending: make(map[int64]*scheduledCallback)}
}

// Now returns the amount of simulated time elapsed since creation.
func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewHandle returns a raft.Timer backed by this clock. Nodes in a
// multi-node test typically share one VirtualClock per node (not one
// globally) so that each node's advance is independently controllable;
// within a node, the two logical timers (receive/send heartbeat) each get
// their own handle from the same clock.
func (c *VirtualClock) NewHandle() raft.Timer {
	return &handle{clock: c}
}

type handle struct {
	clock *VirtualClock
	id    int64
}

func (h *handle) Reset(d time.Duration, fn func()) raft.CancelFunc {
	c := h.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.pending[h.id]; ok {
		cb.live = false
	}
	c.nextID++
	id := c.nextID
	h.id = id
	cb := &scheduledCallback{id: id, deadline: c.now + d, fn: fn, live: true}
	c.pending[id] = cb

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.pending[id]; ok {
			existing.live = false
		}
	}
}

// Advance moves simulated time forward by d and fires every live callback
// whose deadline falls at or before the new time, in deadline order (ties
// broken by scheduling order). Firing happens after the advance decision is
// made for all callbacks due at this step, so a callback that reschedules
// itself for exactly the new "now" does not fire again within the same
// Advance call.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.now = target

	var due []*scheduledCallback
	for _, cb := range c.pending {
		if cb.live && cb.deadline <= target {
			due = append(due, cb)
			cb.live = false
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline < due[j].deadline
		}
		return due[i].id < due[j].id
	})
	for _, cb := range due {
		delete(c.pending, cb.id)
	}
	c.mu.Unlock()

	for _, cb := range due {
		cb.fn()
	}
}
