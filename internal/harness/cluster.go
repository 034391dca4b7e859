// Package harness wires multiple internal/raft.Node instances together
// over an in-memory transport and a simulated clock per node, so that the
// multi-node election/replication scenarios the core only specifies in
// prose can be driven and asserted on deterministically, without a real
// network or wall-clock waits.
package harness

import (
	"sync"
	"time"

	"github.com/rlong/raftkv/internal/raft"
	"github.com/rlong/raftkv/internal/simtime"
)

// RecordingObserver captures every callback internal/raft fires, for
// assertions in scenario tests. Safe for concurrent use even though
// Cluster drives everything on one goroutine, since tests sometimes read
// it from a deferred check.
type RecordingObserver struct {
	mu          sync.Mutex
	roleChanges []raft.RoleChangeEvent
	leaders     []raft.NodeId
	committed   []raft.LogCoords
}

// NewRecordingObserver returns an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver { return &RecordingObserver{} }

func (o *RecordingObserver) OnRoleChange(e raft.RoleChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.roleChanges = append(o.roleChanges, e)
}

func (o *RecordingObserver) OnNewLeader(id raft.NodeId) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaders = append(o.leaders, id)
}

func (o *RecordingObserver) OnEntryCommitted(coords raft.LogCoords) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed = append(o.committed, coords)
}

// RoleChanges, Leaders, Committed return copies of what's been recorded so
// far.
func (o *RecordingObserver) RoleChanges() []raft.RoleChangeEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]raft.RoleChangeEvent, len(o.roleChanges))
	copy(out, o.roleChanges)
	return out
}

func (o *RecordingObserver) Leaders() []raft.NodeId {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]raft.NodeId, len(o.leaders))
	copy(out, o.leaders)
	return out
}

func (o *RecordingObserver) Committed() []raft.LogCoords {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]raft.LogCoords, len(o.committed))
	copy(out, o.committed)
	return out
}

// Cluster wires N nodes together: each gets its own simtime.VirtualClock
// and RecordingObserver, and messages addressed to a peer are delivered by
// direct Go calls rather than any real transport. This is the in-memory
// stand-in internal/transport's HTTP+JSON plumbing exists to replace in
// production.
type Cluster struct {
	nodes     map[raft.NodeId]*raft.Node
	observers map[raft.NodeId]*RecordingObserver
	clocks    map[raft.NodeId]*simtime.VirtualClock
}

// NewCluster builds a fully connected cluster of the given ids. electionTimeout
// is called fresh every time a node (re)arms its receive-heartbeat timer,
// matching the jittered-timeout contract internal/raft expects of its host.
func NewCluster(ids []raft.NodeId, electionTimeout func() time.Duration, heartbeatInterval time.Duration) *Cluster {
	c := &Cluster{
		nodes:     make(map[raft.NodeId]*raft.Node, len(ids)),
		observers: make(map[raft.NodeId]*RecordingObserver, len(ids)),
		clocks:    make(map[raft.NodeId]*simtime.VirtualClock, len(ids)),
	}

	for _, id := range ids {
		id := id // capture for closures
		peers := peersExcluding(ids, id)
		clock := simtime.NewVirtualClock()
		obs := NewRecordingObserver()

		node := raft.NewNode(id, raft.NewClusterView(peers...), raft.Config{
			Persistent:        raft.NewPersistentState(),
			Log:               raft.NewLog(),
			ReceiveHeartbeat:  clock.NewHandle(),
			SendHeartbeat:     clock.NewHandle(),
			OnReceiveTimeout:  func() { c.Deliver(id, raft.TimerMessage{Kind: raft.ReceiveHeartbeatTimeout}) },
			OnSendTimeout:     func() { c.Deliver(id, raft.TimerMessage{Kind: raft.SendHeartbeatTimeout}) },
			ElectionTimeout:   electionTimeout,
			HeartbeatInterval: heartbeatInterval,
			Observer:          obs,
		})

		c.nodes[id] = node
		c.observers[id] = obs
		c.clocks[id] = clock
	}
	return c
}

func peersExcluding(ids []raft.NodeId, self raft.NodeId) []raft.NodeId {
	out := make([]raft.NodeId, 0, len(ids)-1)
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// StartAll arms every node's receive-heartbeat timer.
func (c *Cluster) StartAll() {
	for _, n := range c.nodes {
		n.Start()
	}
}

// Node returns the named node, for direct role/term/log assertions.
func (c *Cluster) Node(id raft.NodeId) *raft.Node { return c.nodes[id] }

// Observer returns the named node's RecordingObserver.
func (c *Cluster) Observer(id raft.NodeId) *RecordingObserver { return c.observers[id] }

// Advance moves id's simulated clock forward by d, firing (and routing the
// results of) any timers that come due.
func (c *Cluster) Advance(id raft.NodeId, d time.Duration) {
	c.clocks[id].Advance(d)
}

// Deliver hands input directly to node `to` and routes whatever Result
// comes back: outgoing PeerRequests are delivered to their destination
// node in turn, and that node's reply is delivered straight back to `to`,
// recursively routing whatever further Results that produces (e.g. a
// winning election's initial AppendEntries broadcast).
func (c *Cluster) Deliver(to raft.NodeId, input raft.Input) raft.Result {
	node, ok := c.nodes[to]
	if !ok {
		panic("harness: unknown node " + string(to))
	}
	result := node.OnMessage(input)
	c.route(to, result)
	return result
}

func (c *Cluster) route(from raft.NodeId, result raft.Result) {
	req, ok := result.(raft.AddressedRequestResult)
	if !ok {
		return
	}
	for _, pr := range req.Requests {
		reply := c.Deliver(pr.Peer, raft.NewRequestMessage(from, pr.Request))
		if aresp, ok := reply.(raft.AddressedResponseResult); ok {
			c.Deliver(from, raft.NewResponseMessage(pr.Peer, aresp.Response))
		}
	}
}
