package session

// Transport is the message sink a session writes to. httpapi supplies
// a websocket-backed implementation; tests supply an in-memory one.
// Each session's transport has a single writer: the session's own
// outbound pump goroutine.
type Transport interface {
	Send(frame []byte) error
	Close() error
}
