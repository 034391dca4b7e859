package transport

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/raft"
)

// deliverer is the subset of *nodehost.Host the peer server needs. Declared
// as an interface here (rather than importing nodehost directly) so the
// handler tests in this package can swap in a fake.
type deliverer interface {
	Deliver(raft.Input) raft.Result
}

// PeerServer exposes this node's raft.Node to the rest of the cluster over
// HTTP+JSON, the same role the teacher's raftserver.server filled over
// gRPC.
type PeerServer struct {
	host   deliverer
	engine *gin.Engine
}

// NewPeerServer wires a gin engine with the single inter-node route,
// POST /raft/message, which carries both request kinds.
func NewPeerServer(host deliverer) *PeerServer {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &PeerServer{host: host, engine: engine}
	engine.POST("/raft/message", s.handleMessage)
	return s
}

// Engine returns the underlying gin engine, for callers that want to mount
// it alongside internal/transport's client-facing routes on one listener.
func (s *PeerServer) Engine() *gin.Engine { return s.engine }

// Serve starts the peer server on lis. It blocks until the server stops;
// callers typically run it in a goroutine, mirroring the teacher's
// StartRaftServer.
func (s *PeerServer) Serve(lis net.Listener) error {
	return http.Serve(lis, s.engine)
}

// handleMessage decodes an inbound wireRequest, delivers it to the node,
// and replies with whatever AddressedResponseResult comes back. A
// request that produces anything other than a single addressed reply
// (the node's AppendEntries/RequestVote handlers always produce exactly
// one) is a bug in internal/raft, not a condition this handler recovers
// from gracefully.
func (s *PeerServer) handleMessage(c *gin.Context) {
	var w wireRequest
	if err := c.ShouldBindJSON(&w); err != nil {
		log.Debug().Err(err).Msg("peer message decode failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := decodeRequest(w)
	if req == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message kind"})
		return
	}

	result := s.host.Deliver(raft.NewRequestMessage(w.From, req))

	reply, ok := result.(raft.AddressedResponseResult)
	if !ok {
		log.Error().Str("from", string(w.From)).Msg("peer message did not produce a reply")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no reply produced"})
		return
	}
	c.JSON(http.StatusOK, encodeResponse(reply.Response))
}
