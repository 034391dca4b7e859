package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateState_HasMajority(t *testing.T) {
	c := NewCandidateState("self", 1, 5)
	assert.False(t, c.HasMajority())

	cluster := NewClusterView("b", "c", "d")
	state := c.OnVote("b", cluster, RequestVoteResponse{Term: 1, Granted: true}, 0)
	require.Equal(t, RoleCandidate, state.Role)
	assert.False(t, state.Candidate.HasMajority())

	state = c.OnVote("c", cluster, RequestVoteResponse{Term: 1, Granted: true}, 0)
	assert.Equal(t, RoleLeader, state.Role)
	require.NotNil(t, state.Leader)
}

func TestCandidateState_DuplicateVoteIgnored(t *testing.T) {
	c := NewCandidateState("self", 1, 3)
	cluster := NewClusterView("b", "c")

	c.OnVote("b", cluster, RequestVoteResponse{Term: 1, Granted: true}, 0)
	state := c.OnVote("b", cluster, RequestVoteResponse{Term: 1, Granted: true}, 0)
	assert.Equal(t, RoleCandidate, state.Role)
	assert.Len(t, state.Candidate.VotesFor, 1)
}

func TestCandidateState_HigherTermStepsDown(t *testing.T) {
	c := NewCandidateState("self", 1, 3)
	cluster := NewClusterView("b", "c")

	state := c.OnVote("b", cluster, RequestVoteResponse{Term: 2, Granted: false}, 0)
	assert.Equal(t, RoleFollower, state.Role)
}

func TestLeaderState_MakeAppendEntriesAdvancesNextIndex(t *testing.T) {
	log := NewLog()
	log.Append(EmptyCoords, 1, entries(1, 1))
	cluster := NewClusterView("b", "c")
	leader := NewLeaderState("self", cluster, log.LatestAppended().Index)

	result, reqs := leader.MakeAppendEntries(log, cluster, 1, entries(1)[:1])
	require.Equal(t, AppendSuccess, result.Outcome)
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		ae := r.Request.(AppendEntries)
		assert.Len(t, ae.Entries, 1)
	}
	for _, peer := range leader.ClusterView {
		assert.Equal(t, result.LastIndex+1, peer.NextIndex)
	}
}

func TestLeaderState_OnAppendResponseSuccessAdvancesMatchIndex(t *testing.T) {
	log := NewLog()
	log.Append(EmptyCoords, 1, entries(1, 1, 1))
	cluster := NewClusterView("b", "c", "d")
	leader := NewLeaderState("self", cluster, log.LatestAppended().Index)

	committed, _ := leader.OnAppendResponse("b", log, cluster, 1, AppendEntriesResponse{Term: 1, Success: true, MatchIndex: 3}, 1<<20)
	assert.Empty(t, committed)
	assert.Equal(t, Index(3), leader.ClusterView["b"].MatchIndex)

	committed, _ = leader.OnAppendResponse("c", log, cluster, 1, AppendEntriesResponse{Term: 1, Success: true, MatchIndex: 3}, 1<<20)
	require.Len(t, committed, 3)
	assert.Equal(t, Index(3), log.LatestCommit())
}

func TestLeaderState_OnAppendResponseFailureBacksOffNextIndex(t *testing.T) {
	log := NewLog()
	log.Append(EmptyCoords, 1, entries(1, 1, 1))
	cluster := NewClusterView("b")
	leader := NewLeaderState("self", cluster, log.LatestAppended().Index)

	before := leader.ClusterView["b"].NextIndex
	_, result := leader.OnAppendResponse("b", log, cluster, 1, AppendEntriesResponse{Term: 1, Success: false}, 1<<20)
	assert.Equal(t, before-1, leader.ClusterView["b"].NextIndex)
	retry, ok := result.(AddressedRequestResult)
	require.True(t, ok)
	assert.Len(t, retry.Requests, 1)
}

func TestLeaderState_CommitRequiresCurrentTerm(t *testing.T) {
	log := NewLog()
	log.Append(EmptyCoords, 1, entries(1, 1))
	cluster := NewClusterView("b", "c")
	leader := NewLeaderState("self", cluster, log.LatestAppended().Index)

	// Entries replicated are from an earlier term than the leader's current
	// term: a majority of MatchIndex alone must not commit them.
	leader.OnAppendResponse("b", log, cluster, 2, AppendEntriesResponse{Term: 2, Success: true, MatchIndex: 2}, 1<<20)
	assert.Equal(t, Index(0), log.LatestCommit())
}
