package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/raft"
)

// PeerClient dials other cluster members over HTTP+JSON, the direct
// replacement for the teacher's gRPC ForeignNode dialing in rpc.go. Dialing
// one node's RequestVote/AppendEntries is a single POST; this client also
// knows how to fan an AddressedRequestResult out to every named peer and
// feed each reply back into the host.
type PeerClient struct {
	self      raft.NodeId
	addresses map[raft.NodeId]string
	host      deliverer
	http      *http.Client
}

// NewPeerClient builds a client that can reach every peer in peers
// (NodeId -> base URL, e.g. "http://10.0.0.2:7000", via addresses) and
// feeds replies back into host. It rejects a cluster configuration that
// names a peer with no known address.
func NewPeerClient(self raft.NodeId, peers []raft.NodeId, addresses map[raft.NodeId]string, host deliverer) (*PeerClient, error) {
	if err := validateAddresses(peers, addresses); err != nil {
		return nil, err
	}
	return &PeerClient{
		self:      self,
		addresses: addresses,
		host:      host,
		http:      &http.Client{Timeout: 2 * time.Second},
	}, nil
}

// Dispatch acts on a Result produced by host.Deliver: an
// AddressedRequestResult is fanned out to every named peer concurrently;
// an AddressedResponseResult or NoOpResult requires no peer dialing (a
// reply to a peer-originated message is returned directly by
// PeerServer.handleMessage instead) and is ignored here.
func (c *PeerClient) Dispatch(result raft.Result) {
	req, ok := result.(raft.AddressedRequestResult)
	if !ok {
		return
	}
	for _, pr := range req.Requests {
		go c.send(pr.Peer, pr.Request)
	}
}

// send posts req to peer and, on success, delivers the decoded response
// back into the host as an AddressedMessage. Failures are logged and
// otherwise swallowed: a peer that's unreachable this round will be
// retried on the next heartbeat/election timeout, matching the teacher's
// fire-and-forget RPC dispatch.
func (c *PeerClient) send(peer raft.NodeId, req raft.RaftRequest) {
	addr, ok := c.addresses[peer]
	if !ok {
		log.Error().Str("peer", string(peer)).Msg("no known address for peer")
		return
	}

	body, err := json.Marshal(encodeRequest(c.self, req))
	if err != nil {
		log.Error().Err(err).Str("peer", string(peer)).Msg("failed to encode outgoing request")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/raft/message", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("peer", string(peer)).Msg("failed to build outgoing request")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Str("peer", string(peer)).Msg("peer unreachable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("peer", string(peer)).Msg("peer rejected request")
		return
	}

	var w wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		log.Error().Err(err).Str("peer", string(peer)).Msg("failed to decode peer response")
		return
	}
	raftResp := decodeResponse(w)
	if raftResp == nil {
		log.Error().Str("peer", string(peer)).Msg("peer returned unknown response kind")
		return
	}

	result := c.host.Deliver(raft.NewResponseMessage(peer, raftResp))
	c.Dispatch(result)
}

// validateAddresses reports an error if any peer in peers lacks a known
// address; NewPeerClient calls it before building a client.
func validateAddresses(peers []raft.NodeId, addresses map[raft.NodeId]string) error {
	for _, p := range peers {
		if _, ok := addresses[p]; !ok {
			return fmt.Errorf("transport: no address configured for peer %q", p)
		}
	}
	return nil
}
