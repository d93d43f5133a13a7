package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authpkg "github.com/collabtext/syncserver/internal/auth"
	"github.com/collabtext/syncserver/internal/authority"
	"github.com/collabtext/syncserver/internal/ot"
	"github.com/collabtext/syncserver/internal/presence"
	"github.com/collabtext/syncserver/internal/protocol"
	"github.com/collabtext/syncserver/internal/store"
)

// fakeTransport buffers sent frames for assertions instead of writing
// to a real socket.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frames = append(f.frames, frame)

	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// waitFrames blocks until at least n frames have arrived or a second
// has passed. Sessions deliver frames from their own write-pump
// goroutine, so a frame is not yet sent when OnMessage returns.
func (f *fakeTransport) waitFrames(n int) {
	deadline := time.Now().Add(time.Second)

	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := len(f.frames)
		f.mu.Unlock()

		if got >= n {
			return
		}

		time.Sleep(time.Millisecond)
	}
}

func (f *fakeTransport) messages(t *testing.T) []map[string]any {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))

	for _, frame := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}

	return out
}

func newTestRouter(t *testing.T, seed string) (*Router, string) {
	t.Helper()

	mem := store.NewMemoryStore()
	docID, err := mem.Create(context.Background(), store.Record{Content: seed})
	require.NoError(t, err)

	authorities := authority.NewRegistry(mem, authority.Config{})
	presenceReg := presence.NewMemoryRegistry(30 * time.Second)
	tokens := authpkg.NewSigner("secret")

	return NewRouter(authorities, presenceReg, tokens), docID
}

func connect(t *testing.T, r *Router, userID string) (*Session, *fakeTransport) {
	t.Helper()

	token, err := r.tokens.Sign(userID)
	require.NoError(t, err)

	tr := &fakeTransport{}
	s, err := r.OnConnect(tr, token)
	require.NoError(t, err)

	return s, tr
}

func TestOnConnect_RejectsBadToken(t *testing.T) {
	r, _ := newTestRouter(t, "x")

	_, err := r.OnConnect(&fakeTransport{}, "garbage")
	require.Error(t, err)
}

func TestJoinDocument_SendsSyncState(t *testing.T) {
	r, docID := newTestRouter(t, "hello")

	s, tr := connect(t, r, "u1")

	frame, err := json.Marshal(protocol.JoinDocument{Type: protocol.TypeJoinDocument, DocID: docID})
	require.NoError(t, err)

	r.OnMessage(context.Background(), s.ID, frame)

	tr.waitFrames(1)
	msgs := tr.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.TypeSyncState, msgs[0]["type"])
	require.Equal(t, "hello", msgs[0]["content"])
}

func TestApplyOp_AcksOriginatorAndBroadcastsToPeers(t *testing.T) {
	r, docID := newTestRouter(t, "test")

	u1, u1Tr := connect(t, r, "u1")
	u2, u2Tr := connect(t, r, "u2")

	joinFrame, _ := json.Marshal(protocol.JoinDocument{Type: protocol.TypeJoinDocument, DocID: docID})
	r.OnMessage(context.Background(), u1.ID, joinFrame)
	r.OnMessage(context.Background(), u2.ID, joinFrame)

	opFrame, _ := json.Marshal(protocol.ApplyOp{
		Type: protocol.TypeApplyOp,
		Op: ot.Operation{
			OpID: "op1", DocID: docID, UserID: "spoofed",
			BaseVersion: 0, Kind: ot.KindInsert, Position: 2, Text: "X",
		},
	})

	r.OnMessage(context.Background(), u1.ID, opFrame)

	u1Tr.waitFrames(3)
	u1Msgs := u1Tr.messages(t)
	require.Len(t, u1Msgs, 3) // SYNC_STATE + USER_JOINED(u2) + ACK_OP
	require.Equal(t, protocol.TypeAckOp, u1Msgs[2]["type"])
	require.Equal(t, "op1", u1Msgs[2]["opId"])

	u2Tr.waitFrames(2)
	u2Msgs := u2Tr.messages(t)
	require.Len(t, u2Msgs, 2) // SYNC_STATE + BROADCAST_OP
	require.Equal(t, protocol.TypeBroadcastOp, u2Msgs[1]["type"])

	opPayload := u2Msgs[1]["op"].(map[string]any)
	require.Equal(t, "u1", opPayload["userId"], "server must overwrite userId with the authenticated identity")
}

func TestOnDisconnect_BroadcastsUserLeft(t *testing.T) {
	r, docID := newTestRouter(t, "x")

	u1, _ := connect(t, r, "u1")
	u2, u2Tr := connect(t, r, "u2")

	joinFrame, _ := json.Marshal(protocol.JoinDocument{Type: protocol.TypeJoinDocument, DocID: docID})
	r.OnMessage(context.Background(), u1.ID, joinFrame)
	r.OnMessage(context.Background(), u2.ID, joinFrame)

	r.OnDisconnect(u1.ID)

	u2Tr.waitFrames(2) // SYNC_STATE + USER_LEFT(u1)
	msgs := u2Tr.messages(t)
	last := msgs[len(msgs)-1]
	require.Equal(t, protocol.TypeUserLeft, last["type"])
	require.Equal(t, "u1", last["userId"])
}

func TestOnMessage_MalformedFrameSendsSingleError(t *testing.T) {
	r, _ := newTestRouter(t, "x")

	s, tr := connect(t, r, "u1")

	r.OnMessage(context.Background(), s.ID, []byte("not json"))

	tr.waitFrames(1)
	msgs := tr.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.TypeError, msgs[0]["type"])
}
