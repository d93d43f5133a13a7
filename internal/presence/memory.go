package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory Registry used in tests, mirroring the
// map+mutex shape of the corpus's in-memory stores with an added
// per-document expiry timestamp standing in for Redis's hash TTL.
type MemoryRegistry struct {
	mu   sync.Mutex
	ttl  time.Duration
	docs map[string]*memoryDoc
}

type memoryDoc struct {
	cursors map[string]int
	expiry  time.Time
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &MemoryRegistry{ttl: ttl, docs: make(map[string]*memoryDoc)}
}

func (m *MemoryRegistry) touch(docID string) *memoryDoc {
	doc, ok := m.docs[docID]
	if !ok || time.Now().After(doc.expiry) {
		doc = &memoryDoc{cursors: make(map[string]int)}
		m.docs[docID] = doc
	}

	doc.expiry = time.Now().Add(m.ttl)

	return doc
}

func (m *MemoryRegistry) Join(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.touch(docID)
	doc.cursors[userID] = 0

	return nil
}

func (m *MemoryRegistry) Leave(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc, ok := m.docs[docID]; ok {
		delete(doc.cursors, userID)
	}

	return nil
}

func (m *MemoryRegistry) UpdateCursor(_ context.Context, docID, userID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.touch(docID)
	doc.cursors[userID] = position

	return nil
}

func (m *MemoryRegistry) ListUsers(_ context.Context, docID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[docID]
	if !ok || time.Now().After(doc.expiry) {
		return nil, nil
	}

	users := make([]string, 0, len(doc.cursors))
	for u := range doc.cursors {
		users = append(users, u)
	}

	return users, nil
}

func (m *MemoryRegistry) GetCursors(_ context.Context, docID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[docID]
	if !ok || time.Now().After(doc.expiry) {
		return map[string]int{}, nil
	}

	out := make(map[string]int, len(doc.cursors))
	for u, p := range doc.cursors {
		out[u] = p
	}

	return out, nil
}

// Expire forces docID's presence entries to be treated as expired,
// used by tests to simulate TTL elapsing without sleeping.
func (m *MemoryRegistry) Expire(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc, ok := m.docs[docID]; ok {
		doc.expiry = time.Now().Add(-time.Second)
	}
}

var _ Registry = (*MemoryRegistry)(nil)
