package session

import (
	"sync"
	"time"
)

// outboxSize bounds each session's outbound queue. A full queue means
// the transport is too slow to keep up; the session is dropped rather
// than stalling the broadcaster (spec §5, §9).
const outboxSize = 256

// cursorCoalesceWindow batches a session's own rapid CURSOR_UPDATE
// sends into at most one flush per window, per spec §4.4's ~50ms
// guidance.
const cursorCoalesceWindow = 50 * time.Millisecond

// Session is one connected client: an authenticated identity bound to
// a transport and, optionally, a joined document.
type Session struct {
	ID     string
	UserID string

	transport Transport
	outbox    chan []byte

	mu       sync.Mutex
	docID    string
	closeOne sync.Once

	cursorMu      sync.Mutex
	cursorPending bool
	cursorValue   int
	cursorTimer   *time.Timer
	flushCursor   func(position int)
}

// newSession wires a session's outbound pump. flushCursor is invoked
// (from the timer goroutine) with the most recent pending cursor
// position once the coalescing window elapses.
func newSession(id, userID string, transport Transport, flushCursor func(position int)) *Session {
	s := &Session{
		ID:          id,
		UserID:      userID,
		transport:   transport,
		outbox:      make(chan []byte, outboxSize),
		flushCursor: flushCursor,
	}

	go s.writePump()

	return s
}

func (s *Session) writePump() {
	for frame := range s.outbox {
		if err := s.transport.Send(frame); err != nil {
			return
		}
	}
}

// Enqueue attempts a non-blocking send to the session's outbound
// queue. It returns false if the queue is full, signaling the caller
// to drop the session.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

// DocID returns the currently joined document, or "" if none.
func (s *Session) DocID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.docID
}

func (s *Session) setDocID(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docID = docID
}

// QueueCursor records position as the session's latest cursor and
// schedules a flush after the coalescing window if one is not already
// pending. Never blocks edit processing.
func (s *Session) QueueCursor(position int) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()

	s.cursorValue = position

	if s.cursorPending {
		return
	}

	s.cursorPending = true
	s.cursorTimer = time.AfterFunc(cursorCoalesceWindow, s.flushPendingCursor)
}

func (s *Session) flushPendingCursor() {
	s.cursorMu.Lock()
	position := s.cursorValue
	s.cursorPending = false
	s.cursorMu.Unlock()

	if s.flushCursor != nil {
		s.flushCursor(position)
	}
}

// Close shuts down the session's outbound pump and transport. Safe to
// call more than once.
func (s *Session) Close() {
	s.closeOne.Do(func() {
		s.cursorMu.Lock()
		if s.cursorTimer != nil {
			s.cursorTimer.Stop()
		}
		s.cursorMu.Unlock()

		close(s.outbox)
		_ = s.transport.Close()
	})
}
