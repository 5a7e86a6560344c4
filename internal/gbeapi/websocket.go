package gbeapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"tankarena/internal/gbe"
	"tankarena/internal/protocol"
)

const (
	// MaxWSConnectionsTotal is the maximum number of duplex sockets allowed
	// across all sessions.
	MaxWSConnectionsTotal = 2000

	// MaxWSConnectionsPerIP is the maximum sockets allowed from one IP.
	MaxWSConnectionsPerIP = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("gbe: websocket connection rejected from origin %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsHub tracks every live socket for connection-count bookkeeping; the
// actual per-session fan-out is owned by gbe.Session.Subscribers, not the
// hub (§3: sessions own their own subscriber set).
type wsHub struct {
	mu        sync.RWMutex
	total     int32
	wsLimiter *WebSocketRateLimiter
}

func newWSHub() *wsHub {
	return &wsHub{wsLimiter: NewWebSocketRateLimiter(MaxWSConnectionsPerIP)}
}

func (h *wsHub) add(ip string) bool {
	if int(atomic.LoadInt32(&h.total)) >= MaxWSConnectionsTotal {
		return false
	}
	if !h.wsLimiter.Allow(ip) {
		return false
	}
	atomic.AddInt32(&h.total, 1)
	UpdateWSConnections(int(atomic.LoadInt32(&h.total)))
	return true
}

func (h *wsHub) remove(ip string) {
	atomic.AddInt32(&h.total, -1)
	h.wsLimiter.Release(ip)
	UpdateWSConnections(int(atomic.LoadInt32(&h.total)))
}

// handleWS upgrades the request and attaches the resulting socket to the
// named session as a Subscriber (§3). The query carries sessionId, role,
// and playerId (for role=player, identifying which tank this socket
// controls); role=ai sockets displace any existing AI subscriber.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		writeError(w, gbe.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}

	if !s.hub.add(ip) {
		RecordConnectionRejected("ws_limit")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.remove(ip)
		return
	}

	role := protocol.Role(r.URL.Query().Get("role"))
	if role != protocol.RoleAI {
		role = protocol.RolePlayer
	}

	var sendMu sync.Mutex
	sub := &gbe.Subscriber{
		ID:       GetClientIP(r) + "-" + r.URL.Query().Get("playerId") + "-" + sessionID,
		Role:     role,
		PlayerID: r.URL.Query().Get("playerId"),
		Send: func(v any) error {
			sendMu.Lock()
			defer sendMu.Unlock()
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			IncrementWSMessages()
			return conn.WriteMessage(websocket.TextMessage, data)
		},
	}

	if displaced := sess.AddSubscriber(sub); displaced != "" {
		log.Printf("gbe: session %s displaced AI subscriber %s", sessionID, displaced)
	}

	go func() {
		defer func() {
			sess.RemoveSubscriber(sub.ID)
			conn.Close()
			s.hub.remove(ip)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleClientFrame(sess, sub, data)
		}
	}()
}

// handleClientFrame dispatches one inbound stream frame ({type:"input"} or
// a debug-toggle frame) per §5.
func (s *Server) handleClientFrame(sess *gbe.Session, sub *gbe.Subscriber, data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}
	switch head.Type {
	case "input":
		var in protocol.InputMessage
		if err := json.Unmarshal(data, &in); err != nil {
			return
		}
		if in.Role == protocol.RoleAI {
			sess.EnqueueAIInput(in)
		} else {
			sess.EnqueuePlayerInput(in)
		}
	case "debug_ai_toggle":
		var msg protocol.DebugToggleMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			sub.DebugAI = msg.Enabled
		}
	case "debug_gbe_toggle":
		var msg protocol.DebugToggleMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			sub.DebugGBE = msg.Enabled
		}
	}
}
