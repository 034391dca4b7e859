package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/publish"
	"github.com/rlong/raftkv/internal/raft"
	"github.com/rlong/raftkv/internal/statemachine"
)

// clientHost is the subset of *nodehost.Host the client-facing API needs
// beyond deliverer.
type clientHost interface {
	deliverer
	Id() raft.NodeId
	Role() raft.Role
	CurrentTerm() raft.Term
	Leader() (raft.NodeId, bool)
}

// kvReader is the subset of *statemachine.KV the read path needs.
type kvReader interface {
	Get(key string) ([]byte, bool)
}

// Server is the client-facing HTTP/WebSocket API: writes go through
// /append, reads through /get, cluster state through /status, and a
// streaming feed of commits through /ws/commits. This is the surface the
// teacher exposed with gin+swaggo over the KV database; here it fronts
// the raft core plus internal/statemachine instead.
type Server struct {
	host      clientHost
	kv        kvReader
	publisher *publish.Publisher
	upgrader  websocket.Upgrader
	handler   http.Handler
}

// NewServer wires a gin engine with CORS (matching the teacher's rs/cors
// use) and the client routes.
func NewServer(host clientHost, kv kvReader, publisher *publish.Publisher) *Server {
	s := &Server{
		host:      host,
		kv:        kv,
		publisher: publisher,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.POST("/append", s.handleAppend)
	engine.GET("/get/:key", s.handleGet)
	engine.GET("/status", s.handleStatus)
	engine.GET("/ws/commits", s.handleCommitStream)

	s.handler = cors.Default().Handler(engine)
	return s
}

// Serve starts the client API on lis, blocking until it stops.
func (s *Server) Serve(lis net.Listener) error {
	return http.Serve(lis, s.handler)
}

type appendRequest struct {
	Key    string `json:"key" binding:"required"`
	Value  []byte `json:"value"`
	Delete bool   `json:"delete"`
}

// handleAppend accepts a client write and hands it to the node as
// raft.AppendData. A non-leader node rejects the write with its known
// leader so the caller can retry there, rather than this layer trying to
// forward the write itself.
func (s *Server) handleAppend(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var data []byte
	if req.Delete {
		data = statemachine.EncodeDelete(req.Key)
	} else {
		data = statemachine.EncodeSet(req.Key, req.Value)
	}

	result := s.host.Deliver(raft.AppendData{Entries: [][]byte{data}})
	switch r := result.(type) {
	case raft.NoOpResult:
		leader, ok := s.host.Leader()
		resp := gin.H{"error": r.Reason}
		if ok {
			resp["leader"] = leader
		}
		c.JSON(http.StatusConflict, resp)
	case raft.AddressedRequestResult:
		c.JSON(http.StatusAccepted, gin.H{"requests": len(r.Requests)})
	default:
		c.JSON(http.StatusAccepted, gin.H{})
	}
}

// handleGet reads the current value for a key out of the state machine.
// There is no linearizability guarantee here: this is a local read of
// whatever has committed on this node, matching the
// pending-commit-tracking-only scope carried over unchanged from the core.
func (s *Server) handleGet(c *gin.Context) {
	key := c.Param("key")
	value, ok := s.kv.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// handleStatus reports this node's role, term, and known leader.
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"id":   s.host.Id(),
		"role": s.host.Role().String(),
		"term": s.host.CurrentTerm(),
	}
	if leader, ok := s.host.Leader(); ok {
		resp["leader"] = leader
	}
	c.JSON(http.StatusOK, resp)
}

// commitEventView is the JSON shape streamed to WebSocket subscribers.
type commitEventView struct {
	Term  raft.Term  `json:"term"`
	Index raft.Index `json:"index"`
}

// handleCommitStream upgrades to a WebSocket and streams every future
// commit event to the client until it disconnects.
func (s *Server) handleCommitStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, ch, cancel := s.publisher.Subscribe()
	defer cancel()
	log.Debug().Str("subscriber", id.String()).Msg("commit stream opened")

	for event := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(commitEventView{Term: event.Term, Index: event.Index}); err != nil {
			log.Debug().Err(err).Str("subscriber", id.String()).Msg("commit stream closed")
			return
		}
	}
}
