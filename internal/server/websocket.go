// CRC: crc-DevServer.md
// Spec: protocol.md
package server

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/zot/actionq/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev server
	},
}

// wsReply answers one batch received over a websocket.
type wsReply struct {
	Reply  int64            `json:"reply"`
	Events []protocol.Event `json:"events,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// wsConn is one client connection; writes are serialized.
type wsConn struct {
	conn     *websocket.Conn
	clientID string
	replies  int64
	mu       sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleWebSocket upgrades GET /ws and answers each text message as a batch.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Log(0, "WebSocket upgrade failed: %v", err)
		return
	}
	c := &wsConn{conn: conn, clientID: clientID(r)}
	s.sessions.GetOrCreate(c.clientID).Touch()
	s.trackConn(c, true)
	s.config.Log(1, "WebSocket connected: client=%s", c.clientID)
	go s.readPump(c)
}

func (s *Server) readPump(c *wsConn) {
	defer func() {
		s.trackConn(c, false)
		c.conn.Close()
		s.config.Log(1, "WebSocket disconnected: client=%s", c.clientID)
	}()
	c.conn.SetReadLimit(s.config.Server.MaxBodyBytes)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.config.Log(0, "WebSocket error: %v", err)
			}
			return
		}

		s.sessions.GetOrCreate(c.clientID).Touch()
		reply := wsReply{Reply: atomic.AddInt64(&c.replies, 1)}
		events, err := s.responder.Respond(c.clientID, message)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Events = events.Events
		}
		if err := c.send(reply); err != nil {
			s.config.Log(0, "WebSocket write failed: %v", err)
			return
		}
	}
}

// Push sends events to every websocket connection of clientID.
// It returns how many connections received them.
func (s *Server) Push(clientID string, events ...protocol.Event) int {
	s.mu.RLock()
	var conns []*wsConn
	for c := range s.conns {
		if c.clientID == clientID {
			conns = append(conns, c)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, c := range conns {
		if err := c.send(protocol.EventBatch{Events: events}); err == nil {
			n++
		}
	}
	return n
}

func (s *Server) trackConn(c *wsConn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}
