// Package publish fans committed log entries out to interested subscribers
// (WebSocket clients, in internal/transport). It is the one piece of
// internal/raft's Observer surface that exists purely to serve clients, not
// the algorithm itself.
package publish

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rlong/raftkv/internal/raft"
)

// CommitEvent is what a subscriber receives each time an entry commits.
type CommitEvent struct {
	Term  raft.Term
	Index raft.Index
}

// Publisher fans out commit events to any number of subscribers. It
// implements raft.Observer so it can be wired directly into
// internal/nodehost's multi-observer chain; the other two Observer methods
// are no-ops (commit events are the only thing clients care about).
type Publisher struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan CommitEvent

	raft.NopObserver
}

// NewPublisher returns an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[uuid.UUID]chan CommitEvent)}
}

// bufferSize bounds how far behind a slow subscriber can fall before it
// starts missing events; Publish never blocks on a subscriber.
const bufferSize = 64

// Subscribe registers a new subscriber and returns its id, a receive-only
// channel of future commit events, and a cancel function that unregisters
// it and closes the channel.
func (p *Publisher) Subscribe() (uuid.UUID, <-chan CommitEvent, func()) {
	id := uuid.New()
	ch := make(chan CommitEvent, bufferSize)

	p.mu.Lock()
	p.subs[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(existing)
		}
	}
	return id, ch, cancel
}

// Publish delivers event to every current subscriber. A subscriber whose
// buffer is full is skipped for this event rather than blocking the
// caller — internal/nodehost invokes this synchronously from
// OnEntryCommitted, so Publish must never stall the raft orchestrator.
func (p *Publisher) Publish(event CommitEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// OnEntryCommitted implements raft.Observer by publishing a CommitEvent for
// every committed entry.
func (p *Publisher) OnEntryCommitted(coords raft.LogCoords) {
	p.Publish(CommitEvent{Term: coords.Term, Index: coords.Index})
}
