package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTimer never actually fires anything; node_test.go drives timeouts
// explicitly by calling OnMessage(TimerMessage{...}) rather than waiting on
// real or simulated time.
type stubTimer struct{}

func (stubTimer) Reset(time.Duration, func()) CancelFunc { return func() {} }

type recordingObserver struct {
	roleChanges []RoleChangeEvent
	leaders     []NodeId
	committed   []LogCoords
}

func (r *recordingObserver) OnRoleChange(e RoleChangeEvent)   { r.roleChanges = append(r.roleChanges, e) }
func (r *recordingObserver) OnNewLeader(id NodeId)            { r.leaders = append(r.leaders, id) }
func (r *recordingObserver) OnEntryCommitted(c LogCoords)     { r.committed = append(r.committed, c) }

func newTestNode(id NodeId, peers ...NodeId) (*Node, *recordingObserver) {
	obs := &recordingObserver{}
	n := NewNode(id, NewClusterView(peers...), Config{
		Persistent:        NewPersistentState(),
		Log:               NewLog(),
		ReceiveHeartbeat:  stubTimer{},
		SendHeartbeat:     stubTimer{},
		OnReceiveTimeout:  func() {},
		OnSendTimeout:     func() {},
		ElectionTimeout:   func() time.Duration { return time.Second },
		HeartbeatInterval: 100 * time.Millisecond,
		Observer:          obs,
	})
	n.Start()
	return n, obs
}

func TestNode_SinglePeerlessClusterBecomesLeaderImmediately(t *testing.T) {
	n, obs := newTestNode("self")
	result := n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})
	assert.Equal(t, RoleLeader, n.Role())
	assert.Equal(t, NoOpResult{Reason: "became leader, no peers"}, result)
	assert.Equal(t, []NodeId{"self"}, obs.leaders)
}

func TestNode_ElectionTimeoutStartsCandidacyAndRequestsVotes(t *testing.T) {
	n, obs := newTestNode("self", "b", "c")
	result := n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})
	require.Equal(t, RoleCandidate, n.Role())
	assert.Equal(t, Term(1), n.CurrentTerm())

	req, ok := result.(AddressedRequestResult)
	require.True(t, ok)
	require.Len(t, req.Requests, 2)
	for _, r := range req.Requests {
		vote := r.Request.(RequestVote)
		assert.Equal(t, Term(1), vote.Term)
	}
	assert.Len(t, obs.roleChanges, 1)
	assert.Equal(t, RoleCandidate, obs.roleChanges[0].New)
}

func TestNode_WinningElectionBecomesLeader(t *testing.T) {
	n, obs := newTestNode("self", "b", "c", "d")
	n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})

	n.OnMessage(NewResponseMessage("b", RequestVoteResponse{Term: 1, Granted: true}))
	require.Equal(t, RoleCandidate, n.Role())

	result := n.OnMessage(NewResponseMessage("c", RequestVoteResponse{Term: 1, Granted: true}))
	require.Equal(t, RoleLeader, n.Role())
	assert.Contains(t, obs.leaders, NodeId("self"))

	req, ok := result.(AddressedRequestResult)
	require.True(t, ok)
	assert.Len(t, req.Requests, 3)
}

func TestNode_HigherTermResponseStepsDownToFollower(t *testing.T) {
	n, _ := newTestNode("self", "b", "c")
	n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})
	require.Equal(t, RoleCandidate, n.Role())

	n.OnMessage(NewResponseMessage("b", RequestVoteResponse{Term: 5, Granted: false}))
	assert.Equal(t, RoleFollower, n.Role())
	assert.Equal(t, Term(5), n.CurrentTerm())
}

func TestNode_RequestVoteGrantedUpdatesTermAndVote(t *testing.T) {
	n, _ := newTestNode("self", "b")
	resp := n.OnMessage(NewRequestMessage("b", RequestVote{Term: 1, LastLog: EmptyCoords}))
	addressed, ok := resp.(AddressedResponseResult)
	require.True(t, ok)
	vote := addressed.Response.(RequestVoteResponse)
	assert.True(t, vote.Granted)
	assert.Equal(t, Term(1), n.CurrentTerm())
}

func TestNode_AppendEntriesFromLeaderSetsLeaderAndResetsTimer(t *testing.T) {
	n, obs := newTestNode("self", "leader")
	resp := n.OnMessage(NewRequestMessage("leader", AppendEntries{Term: 1}))
	addressed := resp.(AddressedResponseResult)
	ae := addressed.Response.(AppendEntriesResponse)
	assert.True(t, ae.Success)

	leader, ok := n.Leader()
	require.True(t, ok)
	assert.Equal(t, NodeId("leader"), leader)
	assert.Equal(t, []NodeId{"leader"}, obs.leaders)
}

func TestNode_AppendEntriesCommitsAndFiresCallback(t *testing.T) {
	n, obs := newTestNode("self", "leader")
	n.OnMessage(NewRequestMessage("leader", AppendEntries{
		Term:        1,
		CommitIndex: 0,
		Entries:     entries(1, 1),
	}))

	n.OnMessage(NewRequestMessage("leader", AppendEntries{
		Term:        1,
		PrevCoords:  LogCoords{Term: 1, Index: 2},
		CommitIndex: 2,
	}))
	require.Len(t, obs.committed, 2)
	assert.Equal(t, Index(2), obs.committed[1].Index)
}

func TestNode_TwoLeadersSameTermPanics(t *testing.T) {
	n, _ := newTestNode("self")
	n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})
	require.Equal(t, RoleLeader, n.Role())

	assert.Panics(t, func() {
		n.OnMessage(NewRequestMessage("other", AppendEntries{Term: n.CurrentTerm()}))
	})
}

func TestNode_AppendDataRejectedWhenNotLeader(t *testing.T) {
	n, _ := newTestNode("self", "leader")
	result := n.OnMessage(AppendData{Entries: [][]byte{[]byte("x")}})
	noop, ok := result.(NoOpResult)
	require.True(t, ok)
	assert.Contains(t, noop.Reason, "not leader")
}

func TestNode_AppendDataAcceptedWhenLeader(t *testing.T) {
	n, _ := newTestNode("self", "b")
	n.OnMessage(TimerMessage{Kind: ReceiveHeartbeatTimeout})
	n.OnMessage(NewResponseMessage("b", RequestVoteResponse{Term: 1, Granted: true}))
	require.Equal(t, RoleLeader, n.Role())

	result := n.OnMessage(AppendData{Entries: [][]byte{[]byte("x")}})
	req, ok := result.(AddressedRequestResult)
	require.True(t, ok)
	require.Len(t, req.Requests, 1)
	ae := req.Requests[0].Request.(AppendEntries)
	assert.Len(t, ae.Entries, 1)
}
