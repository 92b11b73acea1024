// Package ws is the real-time push channel: browsers waiting on a
// verification attach here and receive status events as the lifecycle engine
// records them. The poll endpoint remains the durable fallback, so a lost
// connection is never an error for the engine.
package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kestrelid/age-verification-api/internal/auth"
)

// ErrConnectionGone is returned by Emit when the connection id no longer maps
// to a live websocket.
var ErrConnectionGone = errors.New("websocket connection gone")

const writeTimeout = 5 * time.Second

type connection struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Hub tracks which live websocket, if any, belongs to each auth session.
type Hub struct {
	tokens   auth.SessionTokenAuthenticator
	upgrader websocket.Upgrader
	logger   *zerolog.Logger

	mu        sync.Mutex
	bySession map[string]string
	conns     map[string]*connection
}

// NewHub creates a Hub whose attach handshake is guarded by tokens.
func NewHub(tokens auth.SessionTokenAuthenticator, logger *zerolog.Logger) *Hub {
	return &Hub{
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:    logger,
		bySession: make(map[string]string),
		conns:     make(map[string]*connection),
	}
}

// Attach upgrades the request to a websocket bound to the session named in
// the attach token. A later attach for the same session replaces the earlier one.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.tokens.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()

	h.mu.Lock()
	h.bySession[sessionID] = connID
	h.conns[connID] = &connection{conn: conn}
	h.mu.Unlock()

	h.logger.Debug().Str("session_id", sessionID).Str("conn_id", connID).Msg("websocket attached")

	go h.readUntilClosed(sessionID, connID, conn)
}

// readUntilClosed drains inbound frames; clients only listen, so the first
// read error means the peer is gone.
func (h *Hub) readUntilClosed(sessionID, connID string, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if h.bySession[sessionID] == connID {
		delete(h.bySession, sessionID)
	}
	delete(h.conns, connID)
	h.mu.Unlock()

	_ = conn.Close()
}

// ResolveConnection returns the live connection id for a session, if any.
func (h *Hub) ResolveConnection(sessionID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	connID, ok := h.bySession[sessionID]
	return connID, ok
}

// Emit pushes one named event to a connection id.
func (h *Hub) Emit(connID, event string, payload any) error {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()

	if !ok {
		return ErrConnectionGone
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return c.conn.WriteJSON(map[string]any{
		"event": event,
		"data":  payload,
	})
}
