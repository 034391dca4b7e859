package raft

// PersistentState is the durable currentTerm/votedFor pair every node must
// survive a restart with. votedFor tracks at most one vote per term; once a
// term's vote is recorded it is never overwritten.
type PersistentState struct {
	currentTerm Term
	votedFor    map[Term]NodeId
}

// NewPersistentState returns a fresh PersistentState at term 0 with no
// votes cast. Production callers should instead hydrate one from
// internal/storage after a restart.
func NewPersistentState() *PersistentState {
	return &PersistentState{votedFor: make(map[Term]NodeId)}
}

// LoadPersistentState reconstructs a PersistentState from previously
// persisted values (used when rehydrating from internal/storage).
func LoadPersistentState(currentTerm Term, votedFor map[Term]NodeId) *PersistentState {
	if votedFor == nil {
		votedFor = make(map[Term]NodeId)
	}
	return &PersistentState{currentTerm: currentTerm, votedFor: votedFor}
}

// CurrentTerm returns the node's current term.
func (p *PersistentState) CurrentTerm() Term {
	return p.currentTerm
}

// VotedFor returns who this node voted for in term, and whether it voted at
// all in that term.
func (p *PersistentState) VotedFor(term Term) (NodeId, bool) {
	id, ok := p.votedFor[term]
	return id, ok
}

// AllVotes returns a defensive copy of every vote ever cast, keyed by term.
// Used by internal/storage to persist the full record across restarts.
func (p *PersistentState) AllVotes() map[Term]NodeId {
	out := make(map[Term]NodeId, len(p.votedFor))
	for term, id := range p.votedFor {
		out[term] = id
	}
	return out
}

// SetTerm advances currentTerm. It panics if asked to decrease the term:
// that is a programmer error, not a recoverable condition.
func (p *PersistentState) SetTerm(term Term) {
	if term < p.currentTerm {
		panic("raft: currentTerm must not decrease")
	}
	p.currentTerm = term
}

// RecordVote persists a vote for candidate in term. It panics if a
// different vote was already recorded for that term (double vote is a
// safety violation).
func (p *PersistentState) RecordVote(term Term, candidate NodeId) {
	if existing, ok := p.votedFor[term]; ok && existing != candidate {
		panic("raft: attempted to cast a second vote in the same term")
	}
	p.votedFor[term] = candidate
}

// RequestVote carries a candidate's term and last-log coords, as exchanged
// over the wire.
type RequestVote struct {
	Term    Term
	LastLog LogCoords
}

// RequestVoteResponse carries a voter's reply to a RequestVote.
type RequestVoteResponse struct {
	Term    Term
	Granted bool
}

// CastVote implements the five ordered rules of deny stale
// terms, bump currentTerm and clear any stale vote on seeing a higher term,
// deny a second vote for someone else in the same term, grant only if the
// candidate's log is at least as up to date as localCoords, and persist the
// vote before replying when granting.
func (p *PersistentState) CastVote(localCoords LogCoords, from NodeId, req RequestVote) RequestVoteResponse {
	if req.Term < p.currentTerm {
		return RequestVoteResponse{Term: p.currentTerm, Granted: false}
	}
	if req.Term > p.currentTerm {
		p.currentTerm = req.Term
		delete(p.votedFor, req.Term)
	}

	if existing, ok := p.votedFor[req.Term]; ok && existing != from {
		return RequestVoteResponse{Term: p.currentTerm, Granted: false}
	}

	upToDate := req.LastLog.Term > localCoords.Term ||
		(req.LastLog.Term == localCoords.Term && req.LastLog.Index >= localCoords.Index)
	if !upToDate {
		return RequestVoteResponse{Term: p.currentTerm, Granted: false}
	}

	p.RecordVote(req.Term, from)
	return RequestVoteResponse{Term: p.currentTerm, Granted: true}
}
