// Package session owns the set of live client sessions, dispatches
// their inbound messages to the right document authority, and
// broadcasts results scoped to a document while excluding the
// originator (spec §4.4).
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/collabtext/syncserver/internal/auth"
	"github.com/collabtext/syncserver/internal/authority"
	"github.com/collabtext/syncserver/internal/ot"
	"github.com/collabtext/syncserver/internal/presence"
	"github.com/collabtext/syncserver/internal/protocol"
)

// Router is the process-wide session registry and message dispatcher.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byDoc    map[string]map[string]*Session // docID -> sessionID -> session

	authorities *authority.Registry
	presence    presence.Registry
	tokens      *auth.Signer
}

func NewRouter(authorities *authority.Registry, presenceReg presence.Registry, tokens *auth.Signer) *Router {
	return &Router{
		sessions:    make(map[string]*Session),
		byDoc:       make(map[string]map[string]*Session),
		authorities: authorities,
		presence:    presenceReg,
		tokens:      tokens,
	}
}

// OnConnect verifies token and, if valid, registers a new session over
// transport with no document joined yet.
func (r *Router) OnConnect(transport Transport, token string) (*Session, error) {
	userID, err := r.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	var s *Session
	s = newSession(id, userID, transport, func(position int) {
		r.broadcastCursor(s, position)
	})

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return s, nil
}

// OnDisconnect leaves the session's joined document (if any),
// broadcasts USER_LEFT, and drops the session. Idempotent.
func (r *Router) OnDisconnect(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()

		return
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	r.leaveCurrentDoc(context.Background(), s)
	s.Close()
}

// OnMessage decodes and dispatches a single inbound frame from
// sessionID.
func (r *Router) OnMessage(ctx context.Context, sessionID string, frame []byte) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if !ok {
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		r.sendError(s, "MalformedMessage", err.Error())

		return
	}

	switch m := msg.(type) {
	case *protocol.JoinDocument:
		r.handleJoin(ctx, s, m.DocID)
	case *protocol.ApplyOp:
		r.handleApplyOp(ctx, s, m.Op)
	case *protocol.CursorUpdateIn:
		s.QueueCursor(m.Position)
	}
}

func (r *Router) handleJoin(ctx context.Context, s *Session, docID string) {
	r.leaveCurrentDoc(ctx, s)

	doc, err := r.authorities.LoadOrAttach(ctx, docID)
	if err != nil {
		r.sendError(s, errorKind(err), err.Error())

		return
	}

	if err := r.presence.Join(ctx, docID, s.UserID); err != nil {
		slog.Error("presence join failed", "docId", docID, "userId", s.UserID, "err", err)
	}

	content, version := doc.Snapshot()

	cursors, err := r.presence.GetCursors(ctx, docID)
	if err != nil {
		slog.Error("presence cursors fetch failed", "docId", docID, "err", err)

		cursors = map[string]int{}
	}

	r.addToDoc(s, docID)

	r.sendTo(s, protocol.SyncState{
		Type:    protocol.TypeSyncState,
		Content: content,
		Version: version,
		Cursors: cursors,
	})

	r.broadcastExcept(docID, s.ID, protocol.UserPresence{
		Type:   protocol.TypeUserJoined,
		UserID: s.UserID,
	})
}

func (r *Router) handleApplyOp(ctx context.Context, s *Session, op ot.Operation) {
	docID := op.DocID
	if docID == "" {
		docID = s.DocID()
	}

	if docID == "" {
		r.sendError(s, "Invalid", "no document joined")

		return
	}

	op.UserID = s.UserID
	op.DocID = docID

	doc, err := r.authorities.LoadOrAttach(ctx, docID)
	if err != nil {
		r.sendError(s, errorKind(err), err.Error())

		return
	}

	newVersion, transformed, err := doc.ApplyOperation(ctx, op)
	if err != nil {
		r.sendError(s, errorKind(err), err.Error())

		return
	}

	r.sendTo(s, protocol.AckOp{
		Type:       protocol.TypeAckOp,
		OpID:       op.OpID,
		NewVersion: newVersion,
	})

	if transformed.IsNoop() {
		return
	}

	r.broadcastExcept(docID, s.ID, protocol.BroadcastOp{
		Type: protocol.TypeBroadcastOp,
		Op:   transformed,
	})
}

func (r *Router) broadcastCursor(s *Session, position int) {
	docID := s.DocID()
	if docID == "" {
		return
	}

	if err := r.presence.UpdateCursor(context.Background(), docID, s.UserID, position); err != nil {
		slog.Error("presence cursor update failed", "docId", docID, "userId", s.UserID, "err", err)
	}

	r.broadcastExcept(docID, s.ID, protocol.CursorUpdateOut{
		Type:     protocol.TypeCursorUpdate,
		UserID:   s.UserID,
		Position: position,
	})
}

func (r *Router) leaveCurrentDoc(ctx context.Context, s *Session) {
	docID := s.DocID()
	if docID == "" {
		return
	}

	r.removeFromDoc(s, docID)
	s.setDocID("")

	if err := r.presence.Leave(ctx, docID, s.UserID); err != nil {
		slog.Error("presence leave failed", "docId", docID, "userId", s.UserID, "err", err)
	}

	r.broadcastExcept(docID, s.ID, protocol.UserPresence{
		Type:   protocol.TypeUserLeft,
		UserID: s.UserID,
	})
}

func (r *Router) addToDoc(s *Session, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byDoc[docID] == nil {
		r.byDoc[docID] = make(map[string]*Session)
	}

	r.byDoc[docID][s.ID] = s
	s.setDocID(docID)
}

func (r *Router) removeFromDoc(s *Session, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if peers, ok := r.byDoc[docID]; ok {
		delete(peers, s.ID)

		if len(peers) == 0 {
			delete(r.byDoc, docID)
		}
	}
}

// broadcastExcept encodes the message once, snapshots docID's
// recipient sessions under the router lock, then dispatches outside it so
// a slow or closed transport cannot stall other recipients or hold up
// the caller's document-authority work (spec §5, §9).
func (r *Router) broadcastExcept(docID, excludeSessionID string, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode broadcast failed", "err", err)

		return
	}

	r.mu.RLock()
	peers := r.byDoc[docID]
	recipients := make([]*Session, 0, len(peers))

	for id, peer := range peers {
		if id == excludeSessionID {
			continue
		}

		recipients = append(recipients, peer)
	}
	r.mu.RUnlock()

	for _, peer := range recipients {
		if !peer.Enqueue(frame) {
			r.OnDisconnect(peer.ID)
		}
	}
}

func (r *Router) sendTo(s *Session, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode message failed", "err", err)

		return
	}

	if !s.Enqueue(frame) {
		r.OnDisconnect(s.ID)
	}
}

func (r *Router) sendError(s *Session, kind, message string) {
	r.sendTo(s, protocol.ErrorMessage{Type: protocol.TypeError, Kind: kind, Message: message})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, authority.ErrNotFound):
		return "NotFound"
	case errors.Is(err, authority.ErrFromTheFuture):
		return "FromTheFuture"
	case errors.Is(err, authority.ErrTooStale):
		return "TooStale"
	case errors.Is(err, authority.ErrInvalid):
		return "Invalid"
	case errors.Is(err, authority.ErrStoreUnavailable):
		return "Internal"
	default:
		return "Internal"
	}
}
