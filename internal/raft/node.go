package raft

import (
	"fmt"
	"time"
)

// Node is the single-threaded Raft state machine. It owns
// exactly one Log, one PersistentState, two Timers, and exactly one
// NodeState at a time. Every OnMessage call runs to completion — processing
// input N's observable effects (log writes, persisted term/vote, emitted
// messages) all happen before input N+1 is considered.
type Node struct {
	id      NodeId
	cluster ClusterView

	persistent *PersistentState
	log        *Log
	state      NodeState

	receiveHeartbeatTimer  Timer
	sendHeartbeatTimer     Timer
	receiveHeartbeatCancel CancelFunc
	sendHeartbeatCancel    CancelFunc
	onReceiveTimeout       func()
	onSendTimeout          func()

	electionTimeout   func() time.Duration
	heartbeatInterval time.Duration
	maxAppendSize     int

	observer Observer
}

// Config bundles everything NewNode needs beyond the cluster identity
// itself.
type Config struct {
	Persistent        *PersistentState
	Log               *Log
	ReceiveHeartbeat  Timer
	SendHeartbeat     Timer
	OnReceiveTimeout  func() // invoked by ReceiveHeartbeat when it fires; must deliver TimerMessage{ReceiveHeartbeatTimeout} back through OnMessage
	OnSendTimeout     func() // invoked by SendHeartbeat when it fires; must deliver TimerMessage{SendHeartbeatTimeout} back through OnMessage
	ElectionTimeout   func() time.Duration
	HeartbeatInterval time.Duration
	MaxAppendSize     int
	Observer          Observer
}

// NewNode constructs a Node starting as a Follower with no known leader.
// Call Start to begin the election-timeout cycle.
func NewNode(id NodeId, cluster ClusterView, cfg Config) *Node {
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	maxAppendSize := cfg.MaxAppendSize
	if maxAppendSize <= 0 {
		maxAppendSize = defaultMaxAppendSize
	}
	return &Node{
		id:                id,
		cluster:           cluster,
		persistent:        cfg.Persistent,
		log:               cfg.Log,
		state:             NodeState{Role: RoleFollower, Follower: NewFollowerState(id)},
		receiveHeartbeatTimer: cfg.ReceiveHeartbeat,
		sendHeartbeatTimer:    cfg.SendHeartbeat,
		onReceiveTimeout:      cfg.OnReceiveTimeout,
		onSendTimeout:         cfg.OnSendTimeout,
		electionTimeout:       cfg.ElectionTimeout,
		heartbeatInterval:     cfg.HeartbeatInterval,
		maxAppendSize:         maxAppendSize,
		observer:              observer,
	}
}

// Start begins the receive-heartbeat timer. Call once after construction.
func (n *Node) Start() {
	n.resetReceiveHeartbeat()
}

// Id returns this node's identifier.
func (n *Node) Id() NodeId { return n.id }

// Role returns the node's current role.
func (n *Node) Role() Role { return n.state.Role }

// CurrentTerm returns the node's current persisted term.
func (n *Node) CurrentTerm() Term { return n.persistent.CurrentTerm() }

// Leader returns the currently known leader, if this node is a Follower
// that has observed one.
func (n *Node) Leader() (NodeId, bool) {
	if n.state.Role == RoleFollower && n.state.Follower.Leader != nil {
		return *n.state.Follower.Leader, true
	}
	return "", false
}

// LatestAppended returns the coords of the last entry in this node's log.
func (n *Node) LatestAppended() LogCoords { return n.log.LatestAppended() }

// LatestCommit returns this node's current commit index.
func (n *Node) LatestCommit() Index { return n.log.LatestCommit() }

// LogEntries returns a defensive copy of this node's full log, for tests
// and the harness that need to inspect replicated state directly.
func (n *Node) LogEntries() []LogEntry { return n.log.Entries() }

// OnMessage is the single entry point into the state machine.
func (n *Node) OnMessage(input Input) Result {
	switch m := input.(type) {
	case AddressedMessage:
		return n.onAddressedMessage(m)
	case TimerMessage:
		return n.onTimerMessage(m)
	case AppendData:
		return n.onAppendData(m)
	default:
		return NoOpResult{Reason: "unrecognized input"}
	}
}

func requestTerm(req RaftRequest) Term {
	switch r := req.(type) {
	case AppendEntries:
		return r.Term
	case RequestVote:
		return r.Term
	default:
		return 0
	}
}

func responseTerm(resp RaftResponse) Term {
	switch r := resp.(type) {
	case AppendEntriesResponse:
		return r.Term
	case RequestVoteResponse:
		return r.Term
	default:
		return 0
	}
}

// onAddressedMessage applies the universal term rule before
// dispatching to the request or response handler.
func (n *Node) onAddressedMessage(m AddressedMessage) Result {
	var msgTerm Term
	switch {
	case m.Request != nil:
		msgTerm = requestTerm(m.Request)
	case m.Response != nil:
		msgTerm = responseTerm(m.Response)
	default:
		return NoOpResult{Reason: "empty addressed message"}
	}

	if msgTerm > n.persistent.CurrentTerm() {
		n.becomeFollower(msgTerm, nil)
	}

	if m.Request != nil {
		switch req := m.Request.(type) {
		case AppendEntries:
			return AddressedResponseResult{Peer: m.From, Response: n.onAppendEntries(m.From, req)}
		case RequestVote:
			return AddressedResponseResult{Peer: m.From, Response: n.onRequestVote(m.From, req)}
		}
	}
	switch resp := m.Response.(type) {
	case AppendEntriesResponse:
		return n.onAppendEntriesResponse(m.From, resp)
	case RequestVoteResponse:
		return n.onRequestVoteResponse(m.From, resp)
	}
	return NoOpResult{Reason: "unrecognized message body"}
}

// onAppendEntries handles an incoming AppendEntries request.
func (n *Node) onAppendEntries(from NodeId, req AppendEntries) AppendEntriesResponse {
	currentTerm := n.persistent.CurrentTerm()
	if req.Term < currentTerm {
		return AppendEntriesResponse{Term: currentTerm, Success: false}
	}

	if n.state.Role == RoleLeader && req.Term == currentTerm {
		// Two leaders in the same term is impossible under a correct
		// implementation; treat it as an assertion, not a protocol-level
		// denial.
		panicTwoLeadersSameTerm(currentTerm, n.id, from)
	}

	if n.state.Role == RoleCandidate {
		n.becomeFollower(currentTerm, &from)
	} else if n.state.Follower.Leader == nil || *n.state.Follower.Leader != from {
		n.state.Follower.Leader = &from
		n.observer.OnNewLeader(from)
	}

	n.resetReceiveHeartbeat()

	appendResult := n.log.Append(req.PrevCoords, req.Term, req.Entries)
	if appendResult.Outcome != AppendSuccess {
		return AppendEntriesResponse{Term: n.persistent.CurrentTerm(), Success: false}
	}

	committed := n.log.Commit(req.CommitIndex)
	for _, c := range committed {
		n.observer.OnEntryCommitted(c)
	}
	return AppendEntriesResponse{
		Term:       n.persistent.CurrentTerm(),
		Success:    true,
		MatchIndex: n.log.LatestAppended().Index,
	}
}

// onRequestVote delegates to PersistentState's vote-casting rules, then
// steps down to Follower if that caused a term bump this node hadn't
// already observed.
func (n *Node) onRequestVote(from NodeId, req RequestVote) RequestVoteResponse {
	beforeTerm := n.persistent.CurrentTerm()
	resp := n.persistent.CastVote(n.log.LatestAppended(), from, req)
	if resp.Term > beforeTerm {
		n.becomeFollower(resp.Term, nil)
	}
	return resp
}

func (n *Node) onRequestVoteResponse(from NodeId, resp RequestVoteResponse) Result {
	if n.state.Role != RoleCandidate {
		return NoOpResult{Reason: "not candidate"}
	}
	newState := n.state.Candidate.OnVote(from, n.cluster, resp, n.log.LatestAppended().Index)
	oldRole := n.state.Role
	switch newState.Role {
	case RoleFollower:
		n.becomeFollower(resp.Term, nil)
		return NoOpResult{Reason: "stepped down: higher term observed"}
	case RoleLeader:
		n.state = newState
		reqs := n.finalizeLeaderTransition(oldRole)
		if len(reqs) == 0 {
			return NoOpResult{Reason: "became leader, no peers"}
		}
		return AddressedRequestResult{Requests: reqs}
	default:
		n.state = newState
		return NoOpResult{Reason: "vote recorded"}
	}
}

func (n *Node) onAppendEntriesResponse(from NodeId, resp AppendEntriesResponse) Result {
	if n.state.Role != RoleLeader {
		return NoOpResult{Reason: "not leader"}
	}
	newlyCommitted, result := n.state.Leader.OnAppendResponse(from, n.log, n.cluster, n.persistent.CurrentTerm(), resp, n.maxAppendSize)
	for _, c := range newlyCommitted {
		n.observer.OnEntryCommitted(c)
	}
	return result
}

func (n *Node) onTimerMessage(m TimerMessage) Result {
	switch m.Kind {
	case ReceiveHeartbeatTimeout:
		return n.onReceiveHeartbeatTimeout()
	case SendHeartbeatTimeout:
		return n.onSendHeartbeatTimeout()
	default:
		return NoOpResult{Reason: "unrecognized timer"}
	}
}

// onReceiveHeartbeatTimeout starts or restarts an election.
func (n *Node) onReceiveHeartbeatTimeout() Result {
	newTerm := n.persistent.CurrentTerm() + 1
	n.persistent.SetTerm(newTerm)
	n.persistent.RecordVote(newTerm, n.id)
	n.resetReceiveHeartbeat()

	if n.cluster.PeerCount() == 0 {
		reqs := n.becomeLeader()
		if len(reqs) == 0 {
			return NoOpResult{Reason: "became leader, no peers"}
		}
		return AddressedRequestResult{Requests: reqs}
	}

	n.becomeCandidate(newTerm)
	voteReq := RequestVote{Term: newTerm, LastLog: n.log.LatestAppended()}
	reqs := make([]PeerRequest, 0, n.cluster.PeerCount())
	for _, p := range n.cluster.Peers() {
		reqs = append(reqs, PeerRequest{Peer: p, Request: voteReq})
	}
	return AddressedRequestResult{Requests: reqs}
}

// onSendHeartbeatTimeout emits replication traffic to every peer.
func (n *Node) onSendHeartbeatTimeout() Result {
	if n.state.Role != RoleLeader {
		return NoOpResult{Reason: "not leader"}
	}
	n.resetSendHeartbeat()
	reqs := n.state.Leader.Heartbeat(n.log, n.cluster, n.persistent.CurrentTerm(), n.maxAppendSize)
	if len(reqs) == 0 {
		return NoOpResult{Reason: "no peers"}
	}
	return AddressedRequestResult{Requests: reqs}
}

// onAppendData handles a client write: only a Leader accepts writes.
func (n *Node) onAppendData(m AppendData) Result {
	if n.state.Role != RoleLeader {
		leaderDesc := "none"
		if id, ok := n.Leader(); ok {
			leaderDesc = string(id)
		}
		return NoOpResult{Reason: fmt.Sprintf("not leader; leader is %s", leaderDesc)}
	}
	entries := make([]LogEntry, len(m.Entries))
	for i, d := range m.Entries {
		entries[i] = LogEntry{Data: d}
	}
	_, reqs := n.state.Leader.MakeAppendEntries(n.log, n.cluster, n.persistent.CurrentTerm(), entries)
	if len(reqs) == 0 {
		return NoOpResult{Reason: "appended locally, no peers"}
	}
	return AddressedRequestResult{Requests: reqs}
}

func (n *Node) resetReceiveHeartbeat() {
	if n.onReceiveTimeout == nil {
		return
	}
	n.receiveHeartbeatCancel = n.receiveHeartbeatTimer.Reset(n.electionTimeout(), n.onReceiveTimeout)
}

func (n *Node) cancelReceiveHeartbeat() {
	if n.receiveHeartbeatCancel != nil {
		n.receiveHeartbeatCancel()
	}
}

func (n *Node) resetSendHeartbeat() {
	if n.onSendTimeout == nil {
		return
	}
	n.sendHeartbeatCancel = n.sendHeartbeatTimer.Reset(n.heartbeatInterval, n.onSendTimeout)
}

func (n *Node) cancelSendHeartbeat() {
	if n.sendHeartbeatCancel != nil {
		n.sendHeartbeatCancel()
	}
}

func (n *Node) becomeFollower(term Term, leader *NodeId) {
	oldRole := n.state.Role
	if oldRole == RoleLeader {
		n.cancelSendHeartbeat()
	}
	if term > n.persistent.CurrentTerm() {
		n.persistent.SetTerm(term)
	}
	n.resetReceiveHeartbeat()
	follower := NewFollowerState(n.id)
	follower.Leader = leader
	n.state = NodeState{Role: RoleFollower, Follower: follower}
	if oldRole != RoleFollower {
		n.observer.OnRoleChange(RoleChangeEvent{Term: n.persistent.CurrentTerm(), Old: oldRole, New: RoleFollower})
	}
}

func (n *Node) becomeCandidate(term Term) {
	oldRole := n.state.Role
	n.resetReceiveHeartbeat()
	n.state = NodeState{Role: RoleCandidate, Candidate: NewCandidateState(n.id, term, n.cluster.Size())}
	if oldRole != RoleCandidate {
		n.observer.OnRoleChange(RoleChangeEvent{Term: term, Old: oldRole, New: RoleCandidate})
	}
}

// becomeLeader transitions directly to Leader (the zero-peer fast path in
// onReceiveHeartbeatTimeout). Elections won via vote tally instead go
// through onRequestVoteResponse + finalizeLeaderTransition, since
// CandidateState.OnVote already builds the LeaderState.
func (n *Node) becomeLeader() []PeerRequest {
	oldRole := n.state.Role
	n.state = NodeState{Role: RoleLeader, Leader: NewLeaderState(n.id, n.cluster, n.log.LatestAppended().Index)}
	return n.finalizeLeaderTransition(oldRole)
}

// finalizeLeaderTransition applies the common side effects of arriving at
// Leader: cancel receive-heartbeat, reset send-heartbeat, emit a
// role-change event, fire onNewLeader, and build the immediate empty
// AppendEntries sent to every peer.
func (n *Node) finalizeLeaderTransition(oldRole Role) []PeerRequest {
	n.cancelReceiveHeartbeat()
	n.resetSendHeartbeat()
	if oldRole != RoleLeader {
		n.observer.OnRoleChange(RoleChangeEvent{Term: n.persistent.CurrentTerm(), Old: oldRole, New: RoleLeader})
	}
	n.observer.OnNewLeader(n.id)
	return n.state.Leader.InitialAppendEntries(n.cluster, n.persistent.CurrentTerm())
}
