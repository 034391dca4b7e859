// Package transport is the network-facing shell around internal/nodehost:
// it decodes requests arriving over HTTP into raft.Input, hands them to a
// Host, and encodes the resulting raft.Result back onto the wire. Nothing
// in internal/raft dictates a wire format (JSON here is this layer's own
// choice, same spirit as the teacher picking protobuf for its own gRPC
// surface); internal/raft never sees these types.
package transport

import (
	"github.com/rlong/raftkv/internal/raft"
)

// wireKind tags which of the two RaftRequest/RaftResponse variants a
// message envelope carries, since encoding/json can't marshal an interface
// value without one.
type wireKind string

const (
	kindAppendEntries         wireKind = "append_entries"
	kindRequestVote           wireKind = "request_vote"
	kindAppendEntriesResponse wireKind = "append_entries_response"
	kindRequestVoteResponse   wireKind = "request_vote_response"
)

// Term and Index alias their raft counterparts just to keep the struct
// tags below shorter.
type Term = raft.Term
type Index = raft.Index

// wireEntry is the JSON shape of a raft.LogEntry.
type wireEntry struct {
	Term Term   `json:"term"`
	Data []byte `json:"data"`
}

// wireRequest is the envelope for an outgoing/incoming RaftRequest: exactly
// one of the AppendEntries or RequestVote fields is meaningful, selected by
// Kind.
type wireRequest struct {
	Kind wireKind `json:"kind"`
	From raft.NodeId `json:"from"`

	// AppendEntries fields.
	PrevTerm    Term        `json:"prev_term,omitempty"`
	PrevIndex   Index       `json:"prev_index,omitempty"`
	Term        Term        `json:"term"`
	CommitIndex Index       `json:"commit_index,omitempty"`
	Entries     []wireEntry `json:"entries,omitempty"`

	// RequestVote fields.
	LastLogTerm  Term  `json:"last_log_term,omitempty"`
	LastLogIndex Index `json:"last_log_index,omitempty"`
}

// wireResponse is the envelope for an outgoing/incoming RaftResponse.
type wireResponse struct {
	Kind wireKind `json:"kind"`

	Term       Term `json:"term"`
	Success    bool `json:"success,omitempty"`
	MatchIndex Index `json:"match_index,omitempty"`
	Granted    bool `json:"granted,omitempty"`
}

// encodeRequest converts a raft.RaftRequest into its wire envelope.
func encodeRequest(from raft.NodeId, req raft.RaftRequest) wireRequest {
	switch r := req.(type) {
	case raft.AppendEntries:
		entries := make([]wireEntry, len(r.Entries))
		for i, e := range r.Entries {
			entries[i] = wireEntry{Term: e.Term, Data: e.Data}
		}
		return wireRequest{
			Kind:        kindAppendEntries,
			From:        from,
			PrevTerm:    r.PrevCoords.Term,
			PrevIndex:   r.PrevCoords.Index,
			Term:        r.Term,
			CommitIndex: r.CommitIndex,
			Entries:     entries,
		}
	case raft.RequestVote:
		return wireRequest{
			Kind:         kindRequestVote,
			From:         from,
			Term:         r.Term,
			LastLogTerm:  r.LastLog.Term,
			LastLogIndex: r.LastLog.Index,
		}
	default:
		panic("transport: unknown RaftRequest variant")
	}
}

// decodeRequest converts a wire envelope back into a raft.RaftRequest.
func decodeRequest(w wireRequest) raft.RaftRequest {
	switch w.Kind {
	case kindAppendEntries:
		entries := make([]raft.LogEntry, len(w.Entries))
		for i, e := range w.Entries {
			entries[i] = raft.LogEntry{Term: e.Term, Data: e.Data}
		}
		return raft.AppendEntries{
			PrevCoords:  raft.LogCoords{Term: w.PrevTerm, Index: w.PrevIndex},
			Term:        w.Term,
			CommitIndex: w.CommitIndex,
			Entries:     entries,
		}
	case kindRequestVote:
		return raft.RequestVote{
			Term:    w.Term,
			LastLog: raft.LogCoords{Term: w.LastLogTerm, Index: w.LastLogIndex},
		}
	default:
		return nil
	}
}

// encodeResponse converts a raft.RaftResponse into its wire envelope.
func encodeResponse(resp raft.RaftResponse) wireResponse {
	switch r := resp.(type) {
	case raft.AppendEntriesResponse:
		return wireResponse{Kind: kindAppendEntriesResponse, Term: r.Term, Success: r.Success, MatchIndex: r.MatchIndex}
	case raft.RequestVoteResponse:
		return wireResponse{Kind: kindRequestVoteResponse, Term: r.Term, Granted: r.Granted}
	default:
		panic("transport: unknown RaftResponse variant")
	}
}

// decodeResponse converts a wire envelope back into a raft.RaftResponse.
func decodeResponse(w wireResponse) raft.RaftResponse {
	switch w.Kind {
	case kindAppendEntriesResponse:
		return raft.AppendEntriesResponse{Term: w.Term, Success: w.Success, MatchIndex: w.MatchIndex}
	case kindRequestVoteResponse:
		return raft.RequestVoteResponse{Term: w.Term, Granted: w.Granted}
	default:
		return nil
	}
}
