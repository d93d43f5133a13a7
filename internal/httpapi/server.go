// Package httpapi is the boundary glue named in spec §6.2: document
// create/fetch, token issuance, health, and the WebSocket upgrade that
// hands a connection to the session router. None of this is core
// collaboration logic; it wires the core to the outside world.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/collabtext/syncserver/internal/auth"
	"github.com/collabtext/syncserver/internal/authority"
	"github.com/collabtext/syncserver/internal/session"
	"github.com/collabtext/syncserver/internal/store"
)

// Server holds the dependencies HTTP handlers need.
type Server struct {
	router      *session.Router
	authorities *authority.Registry
	docs        store.Store
	tokens      *auth.Signer
	upgrader    websocket.Upgrader
}

// NewServer wires a Server. router, authorities, docs, and tokens are
// all shared with the rest of the process.
func NewServer(router *session.Router, authorities *authority.Registry, docs store.Store, tokens *auth.Signer) *Server {
	return &Server{
		router:      router,
		authorities: authorities,
		docs:        docs,
		tokens:      tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Handler returns the fully routed http.Handler, following
// astromechza-automerge-experiments's gorilla/mux + logging-middleware
// shape.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/docs", s.handleCreateDocument).Methods(http.MethodPost)
	r.HandleFunc("/docs/{id}", s.handleGetDocument).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
