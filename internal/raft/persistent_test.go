package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistentState_SetTermPanicsOnDecrease(t *testing.T) {
	p := NewPersistentState()
	p.SetTerm(5)
	assert.Panics(t, func() { p.SetTerm(4) })
}

func TestPersistentState_RecordVotePanicsOnDoubleVote(t *testing.T) {
	p := NewPersistentState()
	p.RecordVote(1, "node-a")
	assert.Panics(t, func() { p.RecordVote(1, "node-b") })
	assert.NotPanics(t, func() { p.RecordVote(1, "node-a") })
}

func TestPersistentState_CastVoteDeniesStaleTerm(t *testing.T) {
	p := NewPersistentState()
	p.SetTerm(5)
	resp := p.CastVote(EmptyCoords, "node-a", RequestVote{Term: 4})
	assert.False(t, resp.Granted)
	assert.Equal(t, Term(5), resp.Term)
}

func TestPersistentState_CastVoteGrantsOnceAndDeniesSecondCandidate(t *testing.T) {
	p := NewPersistentState()
	resp := p.CastVote(EmptyCoords, "node-a", RequestVote{Term: 1})
	assert.True(t, resp.Granted)

	resp = p.CastVote(EmptyCoords, "node-b", RequestVote{Term: 1})
	assert.False(t, resp.Granted)

	resp = p.CastVote(EmptyCoords, "node-a", RequestVote{Term: 1})
	assert.True(t, resp.Granted)
}

func TestPersistentState_CastVoteBumpsTermAndClearsStaleVote(t *testing.T) {
	p := NewPersistentState()
	p.CastVote(EmptyCoords, "node-a", RequestVote{Term: 1})

	resp := p.CastVote(EmptyCoords, "node-b", RequestVote{Term: 2})
	assert.True(t, resp.Granted)
	assert.Equal(t, Term(2), p.CurrentTerm())
}

func TestPersistentState_CastVoteDeniesOutOfDateLog(t *testing.T) {
	p := NewPersistentState()
	local := LogCoords{Term: 3, Index: 10}

	resp := p.CastVote(local, "node-a", RequestVote{Term: 1, LastLog: LogCoords{Term: 2, Index: 9}})
	assert.False(t, resp.Granted)

	resp = p.CastVote(local, "node-b", RequestVote{Term: 1, LastLog: LogCoords{Term: 3, Index: 5}})
	assert.False(t, resp.Granted)
}

func TestPersistentState_CastVoteGrantsWhenLogAtLeastAsUpToDate(t *testing.T) {
	p := NewPersistentState()
	local := LogCoords{Term: 3, Index: 10}

	resp := p.CastVote(local, "node-a", RequestVote{Term: 1, LastLog: LogCoords{Term: 4, Index: 1}})
	assert.True(t, resp.Granted)
}
