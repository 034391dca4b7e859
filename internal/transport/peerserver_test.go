package transport

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlong/raftkv/internal/raft"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeDeliverer records the Input it was handed and returns a canned
// Result, standing in for a *nodehost.Host in these handler-level tests.
type fakeDeliverer struct {
	received raft.Input
	result   raft.Result
}

func (f *fakeDeliverer) Deliver(in raft.Input) raft.Result {
	f.received = in
	return f.result
}

func TestPeerServer_HandleMessage_RequestVote(t *testing.T) {
	fake := &fakeDeliverer{result: raft.AddressedResponseResult{
		Peer:     "candidate",
		Response: raft.RequestVoteResponse{Term: 3, Granted: true},
	}}
	s := NewPeerServer(fake)

	body, _ := json.Marshal(wireRequest{Kind: kindRequestVote, From: "candidate", Term: 3, LastLogTerm: 1, LastLogIndex: 2})
	req := httptest.NewRequest("POST", "/raft/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	in, ok := fake.received.(raft.AddressedMessage)
	require.True(t, ok)
	assert.Equal(t, raft.NodeId("candidate"), in.From)
	vote, ok := in.Request.(raft.RequestVote)
	require.True(t, ok)
	assert.Equal(t, raft.Term(3), vote.Term)

	var resp wireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, kindRequestVoteResponse, resp.Kind)
	assert.True(t, resp.Granted)
}

func TestPeerServer_HandleMessage_AppendEntries(t *testing.T) {
	fake := &fakeDeliverer{result: raft.AddressedResponseResult{
		Peer:     "leader",
		Response: raft.AppendEntriesResponse{Term: 5, Success: true, MatchIndex: 2},
	}}
	s := NewPeerServer(fake)

	body, _ := json.Marshal(wireRequest{
		Kind: kindAppendEntries, From: "leader", Term: 5,
		Entries: []wireEntry{{Term: 5, Data: []byte("x")}},
	})
	req := httptest.NewRequest("POST", "/raft/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	in, ok := fake.received.(raft.AddressedMessage)
	require.True(t, ok)
	ae, ok := in.Request.(raft.AppendEntries)
	require.True(t, ok)
	require.Len(t, ae.Entries, 1)
	assert.Equal(t, []byte("x"), ae.Entries[0].Data)

	var resp wireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, raft.Index(2), resp.MatchIndex)
}

func TestPeerServer_HandleMessage_UnknownKind(t *testing.T) {
	fake := &fakeDeliverer{}
	s := NewPeerServer(fake)

	body, _ := json.Marshal(wireRequest{Kind: "bogus"})
	req := httptest.NewRequest("POST", "/raft/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestPeerServer_HandleMessage_NoReplyProducedIsServerError(t *testing.T) {
	fake := &fakeDeliverer{result: raft.NoOpResult{Reason: "stale term"}}
	s := NewPeerServer(fake)

	body, _ := json.Marshal(wireRequest{Kind: kindRequestVote, From: "candidate", Term: 1})
	req := httptest.NewRequest("POST", "/raft/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, 500, rec.Code)
}
