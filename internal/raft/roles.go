package raft

// Role tags which of the three mutually exclusive role states a node is
// currently in. Role values are never mixed: transitions replace the whole
// NodeState wholesale, and dispatch on it is an explicit match, never
// virtual dispatch.
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// FollowerState is a read-only cluster member. Leader is nil until this
// follower observes valid AppendEntries traffic from a leader.
type FollowerState struct {
	Id     NodeId
	Leader *NodeId
}

// NewFollowerState returns a FollowerState with no known leader.
func NewFollowerState(id NodeId) *FollowerState {
	return &FollowerState{Id: id}
}

// Peer is the leader's view of one follower's replication progress.
// Invariant: MatchIndex < NextIndex, and MatchIndex only grows within a
// term.
type Peer struct {
	NextIndex  Index
	MatchIndex Index
}

// CandidateState tallies votes for an election this node started.
type CandidateState struct {
	Id           NodeId
	ElectionTerm Term
	ClusterSize  int
	VotesFor     map[NodeId]struct{}
	VotesAgainst map[NodeId]struct{}
}

// NewCandidateState starts a new election at electionTerm. The self-vote is
// implicit: HasMajority accounts for it without it appearing in VotesFor.
func NewCandidateState(id NodeId, electionTerm Term, clusterSize int) *CandidateState {
	return &CandidateState{
		Id:           id,
		ElectionTerm: electionTerm,
		ClusterSize:  clusterSize,
		VotesFor:     make(map[NodeId]struct{}),
		VotesAgainst: make(map[NodeId]struct{}),
	}
}

// HasMajority reports whether votes received so far (plus the implicit
// self-vote) form a strict majority of the cluster.
func (c *CandidateState) HasMajority() bool {
	return len(c.VotesFor)+1 > c.ClusterSize/2
}

// NodeState is the tagged result of a role transition: exactly one of
// Follower/Candidate/Leader is populated, matching Role.
type NodeState struct {
	Role      Role
	Follower  *FollowerState
	Candidate *CandidateState
	Leader    *LeaderState
}

// OnVote records a vote response and decides the candidate's next state:
//
//   - a response carrying a higher term immediately produces a fresh
//     Follower (the caller is responsible for persisting the new term);
//   - duplicate responses from a peer already recorded are ignored;
//   - a strict majority (including the implicit self-vote) produces a
//     Leader, initialized against cluster using lastAppendedIndex;
//   - otherwise the candidate remains a candidate.
func (c *CandidateState) OnVote(from NodeId, cluster ClusterView, resp RequestVoteResponse, lastAppendedIndex Index) NodeState {
	if resp.Term > c.ElectionTerm {
		return NodeState{Role: RoleFollower, Follower: NewFollowerState(c.Id)}
	}

	if _, already := c.VotesFor[from]; already {
		return NodeState{Role: RoleCandidate, Candidate: c}
	}
	if _, already := c.VotesAgainst[from]; already {
		return NodeState{Role: RoleCandidate, Candidate: c}
	}

	if resp.Granted {
		c.VotesFor[from] = struct{}{}
	} else {
		c.VotesAgainst[from] = struct{}{}
	}

	if c.HasMajority() {
		return NodeState{Role: RoleLeader, Leader: NewLeaderState(c.Id, cluster, lastAppendedIndex)}
	}
	return NodeState{Role: RoleCandidate, Candidate: c}
}

// LeaderState is the leader's per-peer replication bookkeeping.
type LeaderState struct {
	Id          NodeId
	ClusterView map[NodeId]Peer
}

// NewLeaderState initializes a LeaderState for a freshly elected leader: one
// Peer per cluster member, NextIndex pointing just past the leader's own
// log tail, MatchIndex at zero.
func NewLeaderState(id NodeId, cluster ClusterView, lastAppendedIndex Index) *LeaderState {
	cv := make(map[NodeId]Peer, cluster.PeerCount())
	for _, p := range cluster.Peers() {
		cv[p] = Peer{NextIndex: lastAppendedIndex + 1, MatchIndex: 0}
	}
	return &LeaderState{Id: id, ClusterView: cv}
}

// replicationRequest builds the AppendEntries this leader should send peerID
// right now, using that peer's current NextIndex: prevCoords just behind
// NextIndex, and up to maxAppendSize contiguous entries from NextIndex to
// the log's tail (empty when the peer is already caught up — a heartbeat).
func (l *LeaderState) replicationRequest(log *Log, peerID NodeId, currentTerm Term, maxAppendSize int) AppendEntries {
	peer := l.ClusterView[peerID]
	prevIndex := peer.NextIndex - 1
	prevTerm, _ := log.TermForIndex(prevIndex)
	if prevIndex == 0 {
		prevTerm = 0
	}
	entries := log.EntriesFrom(peer.NextIndex, maxAppendSize)
	return AppendEntries{
		PrevCoords:  LogCoords{Term: prevTerm, Index: prevIndex},
		Term:        currentTerm,
		CommitIndex: log.LatestCommit(),
		Entries:     entries,
	}
}

// peerRequests builds one replication request per peer in a stable order.
func (l *LeaderState) peerRequests(log *Log, cluster ClusterView, currentTerm Term, maxAppendSize int) []PeerRequest {
	reqs := make([]PeerRequest, 0, cluster.PeerCount())
	for _, p := range cluster.Peers() {
		reqs = append(reqs, PeerRequest{Peer: p, Request: l.replicationRequest(log, p, currentTerm, maxAppendSize)})
	}
	return reqs
}

// defaultMaxAppendSize bounds how many entries a single AppendEntries can
// carry when replication is otherwise unconstrained (a fresh append, or a
// heartbeat scan to the tail).
const defaultMaxAppendSize = 1 << 30

// MakeAppendEntries appends data to the local log at the leader's current
// term, then builds one AppendEntries per peer using that peer's current
// NextIndex. Every peer's NextIndex is then advanced
// optimistically past the newly appended range; a peer that turns out not
// to have received it will roll NextIndex back via OnAppendResponse.
func (l *LeaderState) MakeAppendEntries(log *Log, cluster ClusterView, currentTerm Term, data []LogEntry) (AppendResult, []PeerRequest) {
	result := log.AppendLocal(currentTerm, data)
	reqs := l.peerRequests(log, cluster, currentTerm, defaultMaxAppendSize)
	if result.Outcome == AppendSuccess && len(data) > 0 {
		for id, peer := range l.ClusterView {
			peer.NextIndex = result.LastIndex + 1
			l.ClusterView[id] = peer
		}
	}
	return result, reqs
}

// Heartbeat builds one AppendEntries per peer without appending anything
// new — used by the periodic send-heartbeat timer. Peers
// that are behind receive their pending entries (up to maxAppendSize);
// peers that are caught up receive an empty heartbeat.
func (l *LeaderState) Heartbeat(log *Log, cluster ClusterView, currentTerm Term, maxAppendSize int) []PeerRequest {
	return l.peerRequests(log, cluster, currentTerm, maxAppendSize)
}

// InitialAppendEntries builds the immediate empty AppendEntries every peer
// receives the instant this node becomes leader.
func (l *LeaderState) InitialAppendEntries(cluster ClusterView, currentTerm Term) []PeerRequest {
	reqs := make([]PeerRequest, 0, cluster.PeerCount())
	for _, p := range cluster.Peers() {
		reqs = append(reqs, PeerRequest{Peer: p, Request: AppendEntries{Term: currentTerm}})
	}
	return reqs
}

// OnAppendResponse applies a follower's AppendEntriesResponse. The caller
// (Node.onAppendEntriesResponse) has already applied the universal term
// rule, so by the time this runs resp.Term can no longer exceed
// currentTerm:
//
//   - success advances MatchIndex/NextIndex and recomputes the commit
//     index (the largest N past the current commit index that a majority
//     of peers, including self, have replicated at this leader's current
//     term), returning newly committed coords;
//   - failure backs NextIndex off toward 1 and returns a retry request
//     built from the new, lower NextIndex.
func (l *LeaderState) OnAppendResponse(
	from NodeId,
	log *Log,
	cluster ClusterView,
	currentTerm Term,
	resp AppendEntriesResponse,
	maxAppendSize int,
) (newlyCommitted []LogCoords, result Result) {
	peer, ok := l.ClusterView[from]
	if !ok {
		return nil, NoOpResult{Reason: "unknown peer"}
	}

	if resp.Success {
		if resp.MatchIndex > peer.MatchIndex {
			peer.MatchIndex = resp.MatchIndex
		}
		peer.NextIndex = peer.MatchIndex + 1
		l.ClusterView[from] = peer

		newCommit := l.computeCommitIndex(log, cluster, currentTerm)
		if newCommit > log.LatestCommit() {
			newlyCommitted = log.Commit(newCommit)
		}
		return newlyCommitted, NoOpResult{Reason: "advertised on next heartbeat"}
	}

	if peer.NextIndex > 1 {
		peer.NextIndex--
	}
	l.ClusterView[from] = peer
	req := l.replicationRequest(log, from, currentTerm, maxAppendSize)
	return nil, AddressedRequestResult{Requests: []PeerRequest{{Peer: from, Request: req}}}
}

// computeCommitIndex finds the highest index N greater than the log's
// current commit index such that a majority of the cluster (including self,
// whose "match index" is the log's own tail) has replicated N, and N's term
// equals currentTerm. Raft forbids committing entries from earlier terms by
// counting replicas alone — they're only committed as a side effect of
// committing a later entry in the leader's own term. Ties pick the largest
// qualifying N.
func (l *LeaderState) computeCommitIndex(log *Log, cluster ClusterView, currentTerm Term) Index {
	self := log.LatestAppended().Index
	commit := log.LatestCommit()
	majority := cluster.Majority()

	for n := self; n > commit; n-- {
		term, ok := log.TermForIndex(n)
		if !ok {
			continue
		}
		count := 1 // self
		for _, p := range cluster.Peers() {
			if peer, ok := l.ClusterView[p]; ok && peer.MatchIndex >= n {
				count++
			}
		}
		if count >= majority && term == currentTerm {
			return n
		}
	}
	return commit
}
