package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a *websocket.Conn to session.Transport. Writes
// are serialized with a mutex because gorilla/websocket connections
// are not safe for concurrent writers, even though in practice only
// the session's own outbound pump goroutine calls Send.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// handleWebSocket upgrades the connection at /ws?token=... (spec
// §6.1), authenticates it, and pumps inbound frames to the session
// router until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "err", err)

		return
	}

	transport := &wsTransport{conn: conn}

	sess, err := s.router.OnConnect(transport, token)
	if err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = conn.Close()

		return
	}

	defer s.router.OnDisconnect(sess.ID)

	ctx := context.Background()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		s.router.OnMessage(ctx, sess.ID, frame)
	}
}
